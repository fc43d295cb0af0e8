package orchestrator

import (
	"fmt"
	"strings"

	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
)

var chapterOptions = llm.Options{Temperature: 0.7, MaxTokens: 4096}

const writerSystemPrompt = "你是一名专业网络小说作家，擅长用中文创作长篇连载小说。" +
	"必须严格保持人物设定和既有情节的连续性，避免与之前内容矛盾或重复编造新的版本，" +
	"对于前文已经明确揭示过的设定和真相，只能在此基础上延展或回顾，" +
	"语言流畅，情绪饱满，节奏自然推进。"

// finalChapterPrompt 收官章模板
func finalChapterPrompt(storyContext string, index int) string {
	return fmt.Sprintf("下面是这本小说当前已知的信息与上下文：\n\n%s\n\n"+
		"现在请你在充分承接上一章剧情的基础上，创作本书的最终结局章节（第%d章），"+
		"这是整本小说的收官之章，必须完成主线矛盾的解决与人物命运的交代。\n"+
		"创作要求：\n"+
		"1. 彻底解决贯穿全书的主要冲突与悬念，不要再引入新的核心矛盾；\n"+
		"2. 清晰交代男女主以及关键配角的最终去向和情感走向；\n"+
		"3. 对前文重要事件做适度呼应和总结，有情感上的回望与升华；\n"+
		"4. 可以保留少量开放式伏笔，但不能留下影响阅读体验的巨大坑。\n"+
		"输出格式要求：\n"+
		"1. 第一行以“本章小结：”开头，给出不超过120字的结局摘要，明确说明本书已经完结；\n"+
		"2. 第二行开始为空一行；\n"+
		"3. 之后输出本章正文，分段自然，有人物对话和场景描写，整体有明显的终章收束感；\n"+
		"4. 严格使用中文创作，不要输出任何额外解释。", storyContext, index)
}

// nextChapterPrompt 常规章节模板
func nextChapterPrompt(storyContext string, index int) string {
	return fmt.Sprintf("下面是这本小说当前已知的信息与上下文：\n\n%s\n\n"+
		"现在请你在充分承接上一章剧情的基础上，创作第%d章的完整内容，"+
		"要求让情节从上一章自然过渡，人物行为与心态前后一致。\n"+
		"输出格式要求：\n"+
		"1. 第一行以“本章小结：”开头，给出不超过100字的剧情摘要；\n"+
		"2. 第二行开始为空一行；\n"+
		"3. 之后输出本章正文，分段自然，有人物对话和场景描写；\n"+
		"4. 严格使用中文创作，不要输出任何额外解释。", storyContext, index)
}

// repairPrompt 在原提示后追加需要规避的冲突
func repairPrompt(basePrompt string, issues []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n上一次生成的版本与已有关键事实存在如下冲突，请在重新创作本章时严格避免出现这些问题：\n")
	for i, issue := range issues {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(issue)
	}
	b.WriteString("\n请重新输出符合要求的本章小结和正文。")
	return b.String()
}
