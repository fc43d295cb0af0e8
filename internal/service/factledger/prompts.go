package factledger

import "fmt"

const (
	auditSystemPrompt = "你是一名严谨的小说审读编辑，负责检查长篇小说是否与既有设定自相矛盾。" +
		"你需要基于给定的事实列表，审读当前章节的小结与正文。"

	extractSystemPrompt = "你是一名严谨的小说策划编辑，负责维护长篇小说的世界观与设定一致性。" +
		"请从给定章节的小结和正文中提取对后续剧情至关重要的“客观事实”。"
)

func auditUserPrompt(factBlock, summary, body string) string {
	return fmt.Sprintf("下面是这本小说当前已经确立的事实，以及本章的小结和正文。\n\n"+
		"%s\n\n"+
		"【本章小结】\n%s\n\n"+
		"【本章正文】\n%s\n\n"+
		"请你逐条检查本章内容是否与关键事实存在明显冲突：\n"+
		"1. 如果没有任何明显冲突，只输出“OK”。\n"+
		"2. 如果存在冲突，请每行输出一个问题点，以“- ”开头，格式为：\n"+
		"   “- 冲突描述；相关事实：XXX”。\n"+
		"不要输出其他解释或总结。", factBlock, summary, body)
}

func extractUserPrompt(summary, body string) string {
	return fmt.Sprintf("下面是某一章的小结和正文内容，请提取不超过%d条剧情设定事实：\n\n"+
		"【本章小结】\n%s\n\n"+
		"【本章正文】\n%s\n\n"+
		"提取要求：\n"+
		"1. 每条事实必须是可以被后文反复引用的客观设定，例如人物的家庭关系、婚姻状态、生死、重大疾病、破产与否等。\n"+
		"2. 不要主观感受、比喻和修辞，只要“发生了什么”或“是什么样的人”。\n"+
		"3. 对于一旦写出就绝不能自相矛盾的设定（如某人已去世、公司已经破产等），在行首加上“%s”。\n"+
		"4. 普通事实在行首可加“%s”或不加标签。\n"+
		"5. 每行一个事实，以“- ”开头，不要编号，不要任何额外解释或总结。\n"+
		"仅输出事实列表本身。", MaxExtractedFacts, summary, body, tagCritical, tagNormal)
}
