package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

var ErrNothingToExport = errors.New("novel has no generated chapters to export")

// ExportFile 导出结果
type ExportFile struct {
	Data []byte
	// Filename 仅含 ASCII 的文件名
	Filename string
	// EncodedFilename 按 RFC 5987 编码的原始标题文件名
	EncodedFilename string
}

// ExportMarkdown 将已生成章节导出为一个 Markdown 文档
func (s *NovelService) ExportMarkdown(novelID uint) (*ExportFile, error) {
	novel, err := s.Get(novelID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.store.Chapters.ListGenerated(novelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	if len(chapters) == 0 {
		return nil, ErrNothingToExport
	}

	return &ExportFile{
		Data:            []byte(RenderMarkdown(novel, chapters)),
		Filename:        asciiFilename(novel.Title) + ".md",
		EncodedFilename: url.PathEscape(strings.ReplaceAll(titleOrDefault(novel.Title), " ", "_")) + ".md",
	}, nil
}

// RenderMarkdown 标题、简介，然后逐章输出小结与正文段落
func RenderMarkdown(novel *model.Novel, chapters []model.Chapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", novel.Title)
	if novel.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", novel.Description)
	}

	for i := range chapters {
		ch := &chapters[i]
		fmt.Fprintf(&b, "## 第%d章 %s\n\n", ch.Index, ch.Title)
		if ch.Outline != "" {
			fmt.Fprintf(&b, "> 本章小结：%s\n\n", ch.Outline)
		}
		for _, para := range strings.Split(ch.Body(), "\n\n") {
			if text := strings.TrimSpace(para); text != "" {
				b.WriteString(text)
				b.WriteString("\n\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func titleOrDefault(title string) string {
	if strings.TrimSpace(title) == "" {
		return "novel"
	}
	return title
}

// asciiFilename 字母数字以外替换为下划线，再去掉非 ASCII 字符
func asciiFilename(title string) string {
	var b strings.Builder
	for _, r := range titleOrDefault(title) {
		switch {
		case r > unicode.MaxASCII:
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				b.WriteRune('_')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "novel"
	}
	return b.String()
}
