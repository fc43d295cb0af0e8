package factledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanFlyhang/NovelBot/internal/model"
	"github.com/CanFlyhang/NovelBot/internal/pkg/database"
	"github.com/CanFlyhang/NovelBot/internal/pkg/llm"
	"github.com/CanFlyhang/NovelBot/internal/repository"
)

type fakeGenerator struct {
	replies []string
	err     error
	calls   [][]llm.ChatMessage
}

func (g *fakeGenerator) Generate(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (string, *llm.Meta, error) {
	g.calls = append(g.calls, messages)
	if g.err != nil {
		return "", nil, g.err
	}
	if len(g.replies) == 0 {
		return "", &llm.Meta{}, nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, &llm.Meta{RequestID: "fake"}, nil
}

func newFactRepo(t *testing.T) repository.FactRepository {
	t.Helper()
	db, err := database.InitDB("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	return repository.NewFactRepository(db)
}

func TestParseFacts(t *testing.T) {
	text := strings.Join([]string{
		"- [重要] 林风的父亲已经去世",
		"• [一般] 青云门位于东海之滨",
		"* 苏瑶擅长炼丹",
		"",
		"-   ",
		"- [重要]",
		"没有标记的事实",
		"- " + strings.Repeat("长", 130),
	}, "\n")

	got := ParseFacts(text)
	want := []ParsedFact{
		{Content: "林风的父亲已经去世", Importance: model.FactImportanceCritical},
		{Content: "青云门位于东海之滨", Importance: model.FactImportanceNormal},
		{Content: "苏瑶擅长炼丹", Importance: model.FactImportanceNormal},
		{Content: "没有标记的事实", Importance: model.FactImportanceNormal},
		{Content: strings.Repeat("长", MaxFactRunes), Importance: model.FactImportanceNormal},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseFacts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAuditIssues(t *testing.T) {
	text := "以下是问题：\n- 林风父亲复活；相关事实：林风的父亲已经去世\n•  \n* 青云门搬到了西域\n1. 编号行不算\n• 苏瑶不会炼丹"
	got := ParseAuditIssues(text)
	want := []string{
		"林风父亲复活；相关事实：林风的父亲已经去世",
		"青云门搬到了西域",
		"苏瑶不会炼丹",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseAuditIssues mismatch (-want +got):\n%s", diff)
	}
}

func TestAuditPassesWithoutFacts(t *testing.T) {
	gen := &fakeGenerator{}
	ledger := New(newFactRepo(t), gen)

	res, err := ledger.Audit(context.Background(), &model.Novel{ID: 1}, 2, "小结", "正文")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, gen.calls)
}

func TestAuditPassesOnEmptyBody(t *testing.T) {
	facts := newFactRepo(t)
	require.NoError(t, facts.CreateBatch([]model.StoryFact{
		{NovelID: 1, ChapterID: 1, ChapterIndex: 1, Content: "事实", Importance: model.FactImportanceCritical},
	}))
	gen := &fakeGenerator{}

	res, err := New(facts, gen).Audit(context.Background(), &model.Novel{ID: 1}, 2, "小结", "")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, gen.calls)
}

func TestAuditReportsIssues(t *testing.T) {
	facts := newFactRepo(t)
	require.NoError(t, facts.CreateBatch([]model.StoryFact{
		{NovelID: 1, ChapterID: 1, ChapterIndex: 1, Content: "林风的父亲已经去世", Importance: model.FactImportanceCritical},
		{NovelID: 1, ChapterID: 1, ChapterIndex: 1, Content: "青云门位于东海之滨", Importance: model.FactImportanceNormal},
	}))
	gen := &fakeGenerator{replies: []string{"- 林风父亲复活；相关事实：林风的父亲已经去世"}}

	res, err := New(facts, gen).Audit(context.Background(), &model.Novel{ID: 1}, 2, "小结", "正文")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"林风父亲复活；相关事实：林风的父亲已经去世"}, res.Issues)

	require.Len(t, gen.calls, 1)
	prompt := gen.calls[0][1].Content
	assert.Contains(t, prompt, "【关键事实】以下设定一旦写出，后文不得自相矛盾：\n- 林风的父亲已经去世")
	assert.Contains(t, prompt, "【补充事实】以下为背景与世界观设定：\n- 青云门位于东海之滨")
}

// 审核采用宽松策略：模型回复无法解析或调用失败时一律放行
func TestAuditLenientDefaultPass(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"ok", "OK", nil},
		{"prose without bullets", "本章存在一些问题，但我不确定。", nil},
		{"numbered list is not a bullet", "1. 林风父亲复活", nil},
		{"model error", "", errors.New("upstream down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := newFactRepo(t)
			require.NoError(t, facts.CreateBatch([]model.StoryFact{
				{NovelID: 1, ChapterID: 1, ChapterIndex: 1, Content: "事实", Importance: model.FactImportanceCritical},
			}))
			gen := &fakeGenerator{replies: []string{tt.reply}, err: tt.err}

			res, err := New(facts, gen).Audit(context.Background(), &model.Novel{ID: 1}, 2, "小结", "正文")
			require.NoError(t, err)
			assert.True(t, res.Passed)
			assert.Empty(t, res.Issues)
			assert.Len(t, gen.calls, 1)
		})
	}
}

func TestAuditIgnoresFactsFromLaterChapters(t *testing.T) {
	facts := newFactRepo(t)
	require.NoError(t, facts.CreateBatch([]model.StoryFact{
		{NovelID: 1, ChapterID: 3, ChapterIndex: 3, Content: "未来事实", Importance: model.FactImportanceCritical},
	}))
	gen := &fakeGenerator{}

	res, err := New(facts, gen).Audit(context.Background(), &model.Novel{ID: 1}, 3, "小结", "正文")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, gen.calls)
}

func TestExtractTagsFactsWithChapter(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"- [重要] 林风的父亲已经去世\n- 青云门位于东海之滨"}}
	ledger := New(newFactRepo(t), gen)

	novel := &model.Novel{ID: 5}
	chapter := &model.Chapter{ID: 42, NovelID: 5, Index: 3}
	ext := ledger.Extract(context.Background(), novel, chapter, "小结", "正文")
	require.NoError(t, ext.Err)

	want := []model.StoryFact{
		{NovelID: 5, ChapterID: 42, ChapterIndex: 3, Content: "林风的父亲已经去世", Importance: model.FactImportanceCritical},
		{NovelID: 5, ChapterID: 42, ChapterIndex: 3, Content: "青云门位于东海之滨", Importance: model.FactImportanceNormal},
	}
	if diff := cmp.Diff(want, ext.Facts); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractCapsFactCount(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("- 事实%d", i))
	}
	gen := &fakeGenerator{replies: []string{strings.Join(lines, "\n")}}

	ext := New(newFactRepo(t), gen).Extract(context.Background(), &model.Novel{ID: 1}, &model.Chapter{ID: 1, Index: 1}, "s", "b")
	require.NoError(t, ext.Err)
	assert.Len(t, ext.Facts, MaxExtractedFacts)
}

func TestExtractSkipsEmptyBodyAndCarriesErrors(t *testing.T) {
	gen := &fakeGenerator{}
	ledger := New(newFactRepo(t), gen)

	ext := ledger.Extract(context.Background(), &model.Novel{ID: 1}, &model.Chapter{ID: 1, Index: 1}, "s", "")
	assert.NoError(t, ext.Err)
	assert.Empty(t, ext.Facts)
	assert.Empty(t, gen.calls)

	gen.err = errors.New("boom")
	ext = ledger.Extract(context.Background(), &model.Novel{ID: 1}, &model.Chapter{ID: 1, Index: 1}, "s", "b")
	assert.Error(t, ext.Err)
	assert.Empty(t, ext.Facts)
}

func TestSelectRecentKeepsLatest(t *testing.T) {
	var facts []model.StoryFact
	for i := 1; i <= 5; i++ {
		facts = append(facts,
			model.StoryFact{ChapterIndex: i, Content: fmt.Sprintf("c%d", i), Importance: model.FactImportanceCritical},
			model.StoryFact{ChapterIndex: i, Content: fmt.Sprintf("n%d", i), Importance: model.FactImportanceNormal},
		)
	}

	critical, normal := SelectRecent(facts, 2, 3)
	var got []string
	for _, f := range append(critical, normal...) {
		got = append(got, f.Content)
	}
	assert.Equal(t, []string{"c4", "c5", "n3", "n4", "n5"}, got)
}
