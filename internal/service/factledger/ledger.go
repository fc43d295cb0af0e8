package factledger

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

// 审核时注入的事实上限
const (
	AuditCriticalLimit = 50
	AuditNormalLimit   = 50
)

var (
	auditOptions   = llm.Options{Temperature: 0.2, MaxTokens: 1024}
	extractOptions = llm.Options{Temperature: 0.2, MaxTokens: 1024}
)

// AuditResult 一致性审核结果
type AuditResult struct {
	Passed bool
	Issues []string
}

// Extraction 事实提取结果，Err 仅记录模型调用失败，不影响章节提交
type Extraction struct {
	Facts []model.StoryFact
	Err   error
}

// Ledger 事实账本：审核章节与既有事实的一致性，并从新章节中提取事实
type Ledger struct {
	facts     repository.FactRepository
	generator llm.Generator
}

func New(facts repository.FactRepository, generator llm.Generator) *Ledger {
	return &Ledger{facts: facts, generator: generator}
}

// Audit 检查章节是否与 chapterIndex 之前的事实冲突
// 无事实、正文为空、模型出错或回复中没有合法条目时均视为通过
func (l *Ledger) Audit(ctx context.Context, novel *model.Novel, chapterIndex int, summary, body string) (AuditResult, error) {
	facts, err := l.facts.ListBefore(novel.ID, chapterIndex)
	if err != nil {
		return AuditResult{}, fmt.Errorf("load facts for audit: %w", err)
	}

	block := BuildAuditFactBlock(facts)
	if block == "" || body == "" {
		return AuditResult{Passed: true}, nil
	}

	text, _, err := l.generator.Generate(ctx, llm.NewMessages(auditSystemPrompt, auditUserPrompt(block, summary, body)), auditOptions)
	if err != nil {
		klog.Warningf("一致性审核调用失败，按通过处理: novelID=%d, chapterIndex=%d, err=%v", novel.ID, chapterIndex, err)
		return AuditResult{Passed: true}, nil
	}

	issues := ParseAuditIssues(text)
	if len(issues) == 0 {
		return AuditResult{Passed: true}, nil
	}
	klog.V(6).Infof("一致性审核发现冲突: novelID=%d, chapterIndex=%d, issues=%d", novel.ID, chapterIndex, len(issues))
	return AuditResult{Passed: false, Issues: issues}, nil
}

// Extract 从章节中提取事实，返回的事实尚未写入数据库
func (l *Ledger) Extract(ctx context.Context, novel *model.Novel, chapter *model.Chapter, summary, body string) Extraction {
	if body == "" {
		return Extraction{}
	}

	text, _, err := l.generator.Generate(ctx, llm.NewMessages(extractSystemPrompt, extractUserPrompt(summary, body)), extractOptions)
	if err != nil {
		return Extraction{Err: fmt.Errorf("extract facts: %w", err)}
	}

	parsed := ParseFacts(text)
	if len(parsed) > MaxExtractedFacts {
		parsed = parsed[:MaxExtractedFacts]
	}
	facts := make([]model.StoryFact, 0, len(parsed))
	for _, p := range parsed {
		facts = append(facts, model.StoryFact{
			NovelID:      novel.ID,
			ChapterID:    chapter.ID,
			ChapterIndex: chapter.Index,
			Content:      p.Content,
			Importance:   p.Importance,
		})
	}
	return Extraction{Facts: facts}
}

// SelectRecent 将按章节顺序排列的事实拆分为关键与一般两组，各保留最近的若干条
func SelectRecent(facts []model.StoryFact, criticalLimit, normalLimit int) (critical, normal []model.StoryFact) {
	for _, f := range facts {
		if f.Importance == model.FactImportanceCritical {
			critical = append(critical, f)
		} else {
			normal = append(normal, f)
		}
	}
	return tail(critical, criticalLimit), tail(normal, normalLimit)
}

// BuildAuditFactBlock 构造审核用的事实文本，没有事实时返回空串
func BuildAuditFactBlock(facts []model.StoryFact) string {
	critical, normal := SelectRecent(facts, AuditCriticalLimit, AuditNormalLimit)
	if len(critical) == 0 && len(normal) == 0 {
		return ""
	}

	var lines []string
	if len(critical) > 0 {
		lines = append(lines, "【关键事实】以下设定一旦写出，后文不得自相矛盾：")
		for _, f := range critical {
			lines = append(lines, "- "+f.Content)
		}
	}
	if len(normal) > 0 {
		lines = append(lines, "\n【补充事实】以下为背景与世界观设定：")
		for _, f := range normal {
			lines = append(lines, "- "+f.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func tail(facts []model.StoryFact, n int) []model.StoryFact {
	if len(facts) > n {
		return facts[len(facts)-n:]
	}
	return facts
}
