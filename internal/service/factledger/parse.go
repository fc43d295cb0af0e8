package factledger

import (
	"strings"
	"unicode/utf8"

	"github.com/CanFlyhang/NovelBot/internal/model"
)

const (
	tagCritical = "[重要]"
	tagNormal   = "[一般]"

	// MaxFactRunes 单条事实的最大长度
	MaxFactRunes = 120
	// MaxExtractedFacts 单章提取的事实上限
	MaxExtractedFacts = 20
)

// ParsedFact 从模型输出解析出的一条事实
type ParsedFact struct {
	Content    string
	Importance model.FactImportance
}

// ParseFacts 解析事实列表：去掉行首 -•* 标记，识别重要性标签，丢弃空行，截断过长内容
func ParseFacts(text string) []ParsedFact {
	var facts []ParsedFact
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if r, size := utf8.DecodeRuneInString(line); strings.ContainsRune("-•*", r) {
			line = strings.TrimSpace(line[size:])
		}

		importance := model.FactImportanceNormal
		switch {
		case strings.HasPrefix(line, tagCritical):
			line = strings.TrimSpace(strings.TrimPrefix(line, tagCritical))
			importance = model.FactImportanceCritical
		case strings.HasPrefix(line, tagNormal):
			line = strings.TrimSpace(strings.TrimPrefix(line, tagNormal))
		}
		if line == "" {
			continue
		}

		facts = append(facts, ParsedFact{Content: truncateRunes(line, MaxFactRunes), Importance: importance})
	}
	return facts
}

var issueMarkers = []string{"- ", "• ", "* "}

// ParseAuditIssues 只接受以 "- "、"• "、"* " 开头的行作为冲突项
func ParseAuditIssues(text string) []string {
	var issues []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		for _, marker := range issueMarkers {
			if strings.HasPrefix(line, marker) {
				if issue := strings.TrimSpace(strings.TrimPrefix(line, marker)); issue != "" {
					issues = append(issues, issue)
				}
				break
			}
		}
	}
	return issues
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
