package storycontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/repository"
	"github.com/CanFlyhang/NovelBot/internal/service/factledger"
)

// 上下文裁剪参数
const (
	PlotNodeLimit       = 10
	CriticalFactLimit   = 60
	NormalFactLimit     = 80
	LatestTailRunes     = 500
	FullBodyMaxRunes    = 800
	EarlierHeadRunes    = 400
	EarlierTailRunes    = 300
	SyntheticOutlineLen = 60

	ellipsis = "\n……\n"
)

// Assembler 为下一章生成组装小说上下文
type Assembler struct {
	chapters   repository.ChapterRepository
	characters repository.CharacterRepository
	plotNodes  repository.PlotNodeRepository
	facts      repository.FactRepository
}

func NewAssembler(store *repository.Store) *Assembler {
	return &Assembler{
		chapters:   store.Chapters,
		characters: store.Characters,
		plotNodes:  store.PlotNodes,
		facts:      store.Facts,
	}
}

// Build 按固定顺序输出：基本信息、人物、情节节点、事实、前情回顾
func (a *Assembler) Build(ctx context.Context, novel *model.Novel, targetIndex int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	chapters, err := a.chapters.ListCompletedBefore(novel.ID, targetIndex)
	if err != nil {
		return "", fmt.Errorf("load chapters: %w", err)
	}
	characters, err := a.characters.ListByNovel(novel.ID)
	if err != nil {
		return "", fmt.Errorf("load characters: %w", err)
	}
	nodes, err := a.plotNodes.ListByNovel(novel.ID)
	if err != nil {
		return "", fmt.Errorf("load plot nodes: %w", err)
	}
	facts, err := a.facts.ListBefore(novel.ID, targetIndex)
	if err != nil {
		return "", fmt.Errorf("load facts: %w", err)
	}

	return Render(novel, characters, nodes, facts, chapters), nil
}

// Render 根据已加载的数据拼装上下文文本
func Render(novel *model.Novel, characters []model.Character, nodes []model.PlotNode, facts []model.StoryFact, chapters []model.Chapter) string {
	lines := []string{
		"小说标题：" + novel.Title,
		"类型：" + novel.Genre,
	}
	if novel.Description != "" {
		lines = append(lines, "整体设定："+novel.Description)
	}

	if len(characters) > 0 {
		lines = append(lines, "\n主要人物：")
		for _, c := range characters {
			role := c.Role
			if role == "" {
				role = "未知身份"
			}
			lines = append(lines, fmt.Sprintf("- %s（%s）：%s", c.Name, role, c.Description))
		}
	}

	if len(nodes) > 0 {
		lines = append(lines, "\n关键情节节点：")
		if len(nodes) > PlotNodeLimit {
			nodes = nodes[len(nodes)-PlotNodeLimit:]
		}
		for _, n := range nodes {
			lines = append(lines, fmt.Sprintf("- 第%d节点：%s", n.Index, n.Summary))
		}
	}

	critical, normal := factledger.SelectRecent(facts, CriticalFactLimit, NormalFactLimit)
	if len(critical) > 0 {
		lines = append(lines, "\n已确立且不能自相矛盾的关键事实：")
		for _, f := range critical {
			lines = append(lines, "- "+f.Content)
		}
	}
	if len(normal) > 0 {
		lines = append(lines, "\n补充世界观事实：")
		for _, f := range normal {
			lines = append(lines, "- "+f.Content)
		}
	}

	if len(chapters) > 0 {
		lines = append(lines, "\n前情回顾（按章节顺序）：")
		latest := len(chapters) - 1
		for i := range chapters {
			ch := &chapters[i]
			content := strings.TrimSpace(ch.Body())
			outline := strings.TrimSpace(ch.Outline)
			if outline == "" && content != "" {
				outline = head(content, SyntheticOutlineLen)
			}

			if outline != "" {
				lines = append(lines, fmt.Sprintf("第%d章《%s》小结：%s", ch.Index, ch.Title, outline))
			} else {
				lines = append(lines, fmt.Sprintf("第%d章《%s》", ch.Index, ch.Title))
			}
			if snippet := Snippet(content, i == latest); snippet != "" {
				lines = append(lines, "关键片段：", snippet)
			}
		}
	}

	return strings.Join(lines, "\n")
}

// Snippet 截取章节片段：最近一章取结尾，较早章节过长时保留首尾
func Snippet(content string, latest bool) string {
	runes := []rune(content)
	if latest {
		if len(runes) > LatestTailRunes {
			return string(runes[len(runes)-LatestTailRunes:])
		}
		return content
	}
	if len(runes) <= FullBodyMaxRunes {
		return content
	}
	return string(runes[:EarlierHeadRunes]) + ellipsis + string(runes[len(runes)-EarlierTailRunes:])
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
