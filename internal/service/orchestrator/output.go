package orchestrator

import (
	"fmt"
	"strings"
)

// MaxTitleRunes 由小结生成标题时的最大长度
const MaxTitleRunes = 16

var summaryLabels = []string{"本章小结", "Summary"}

// ParseGenerationOutput 第一行为小结（去掉“本章小结：”标签），其余为正文
func ParseGenerationOutput(text string) (summary, body string) {
	if text == "" {
		return "", ""
	}
	lines := strings.Split(text, "\n")
	summary = stripSummaryLabel(strings.TrimSpace(lines[0]))
	body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return summary, body
}

// CountWords 去掉空格与换行后的字符数
func CountWords(body string) int {
	return len([]rune(strings.NewReplacer(" ", "", "\n", "").Replace(body)))
}

// ChapterTitle 用小结生成章节标题，小结为空时返回“第N章”
func ChapterTitle(index int, summary string) string {
	clean := strings.TrimSpace(strings.ReplaceAll(summary, "\n", ""))
	clean = stripSummaryLabel(clean)
	if clean == "" {
		return fmt.Sprintf("第%d章", index)
	}
	if r := []rune(clean); len(r) > MaxTitleRunes {
		clean = string(r[:MaxTitleRunes])
	}
	return clean
}

// stripSummaryLabel 仅在标签后紧跟冒号时去掉标签
func stripSummaryLabel(line string) string {
	for _, label := range summaryLabels {
		if !strings.HasPrefix(line, label) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, label))
		for _, colon := range []string{":", "："} {
			if strings.HasPrefix(rest, colon) {
				return strings.TrimSpace(strings.TrimPrefix(rest, colon))
			}
		}
	}
	return line
}
