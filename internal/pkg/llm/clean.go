package llm

import (
	"strings"
)

var whitespaceReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u3000", " ",
	"\t", " ",
)

// CleanContent 规范化模型输出：统一换行，全角空格与制表符转为空格，
// 合并连续空格，去掉每行首尾空白并丢弃空行
func CleanContent(text string) string {
	text = whitespaceReplacer.Replace(text)
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
