package model

import (
	"time"
)

// DateLayout 计划日期与统计日期的存储格式，字符串比较即时间先后
const DateLayout = "2006-01-02"

// FormatDate 将时间格式化为日期字符串
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

type NovelStatus string

const (
	NovelStatusPlanned   NovelStatus = "PLANNED"
	NovelStatusWriting   NovelStatus = "WRITING"
	NovelStatusPaused    NovelStatus = "PAUSED"
	NovelStatusCompleted NovelStatus = "COMPLETED"
	NovelStatusError     NovelStatus = "ERROR"
)

type ChapterStatus string

const (
	ChapterStatusPlanned   ChapterStatus = "PLANNED"
	ChapterStatusWriting   ChapterStatus = "WRITING"
	ChapterStatusCompleted ChapterStatus = "COMPLETED"
	ChapterStatusError     ChapterStatus = "ERROR"
)

type FactImportance string

const (
	FactImportanceCritical FactImportance = "CRITICAL"
	FactImportanceNormal   FactImportance = "NORMAL"
)

// 创作日志级别
const (
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
)

type Novel struct {
	ID                  uint        `json:"id" gorm:"primaryKey"`
	Title               string      `json:"title" gorm:"size:255;not null"`
	Genre               string      `json:"genre" gorm:"size:64;not null"`
	Description         string      `json:"description" gorm:"type:text"`
	TargetChapterCount  int         `json:"target_chapter_count" gorm:"not null"`
	CurrentChapterIndex int         `json:"current_chapter_index" gorm:"not null"`
	Status              NovelStatus `json:"status" gorm:"size:32;not null;index"`
	PlannedDate         string      `json:"planned_date" gorm:"size:10;index"`
	CreatedAt           time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt           time.Time   `json:"updated_at"`
	Chapters            []Chapter   `json:"chapters,omitempty" gorm:"foreignKey:NovelID"`
}

// IsLastChapter 判断给定章节序号是否为收官章
func (n *Novel) IsLastChapter(index int) bool {
	return index >= n.TargetChapterCount
}

type Chapter struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	NovelID   uint          `json:"novel_id" gorm:"not null;uniqueIndex:uix_novel_chapter_index"`
	Index     int           `json:"index" gorm:"column:chapter_index;not null;uniqueIndex:uix_novel_chapter_index"`
	Title     string        `json:"title" gorm:"size:255;not null"`
	Outline   string        `json:"outline" gorm:"type:text"`
	Content   *string       `json:"content" gorm:"type:text"`
	WordCount int           `json:"word_count" gorm:"not null"`
	Status    ChapterStatus `json:"status" gorm:"size:32;not null"`
	CreatedAt time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Body 返回正文，未生成时为空串
func (c *Chapter) Body() string {
	if c.Content == nil {
		return ""
	}
	return *c.Content
}

type Character struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	NovelID     uint           `json:"novel_id" gorm:"not null;uniqueIndex:uix_character_name"`
	Name        string         `json:"name" gorm:"size:128;not null;uniqueIndex:uix_character_name"`
	Role        string         `json:"role" gorm:"size:64"`
	Description string         `json:"description" gorm:"type:text"`
	Metadata    map[string]any `json:"metadata,omitempty" gorm:"column:metadata;type:text;serializer:json"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
}

type PlotNode struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	NovelID   uint           `json:"novel_id" gorm:"not null;index:idx_plot_nodes_novel_index"`
	ChapterID *uint          `json:"chapter_id"`
	Index     int            `json:"index" gorm:"column:node_index;not null;index:idx_plot_nodes_novel_index"`
	Summary   string         `json:"summary" gorm:"type:text;not null"`
	NodeType  string         `json:"node_type" gorm:"size:64"`
	Metadata  map[string]any `json:"metadata,omitempty" gorm:"column:metadata;type:text;serializer:json"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

// StoryFact 剧情事实，写入后不再修改
type StoryFact struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	NovelID      uint           `json:"novel_id" gorm:"not null;index:idx_story_facts_novel_chapter"`
	ChapterID    uint           `json:"chapter_id" gorm:"not null"`
	ChapterIndex int            `json:"chapter_index" gorm:"not null;index:idx_story_facts_novel_chapter"`
	Category     string         `json:"category" gorm:"size:64"`
	Content      string         `json:"content" gorm:"type:text;not null"`
	Importance   FactImportance `json:"importance" gorm:"size:16;not null"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
}

type CreationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	NovelID   uint      `json:"novel_id" gorm:"not null;index:idx_creation_logs_novel_time"`
	ChapterID *uint     `json:"chapter_id"`
	Level     string    `json:"level" gorm:"size:32;not null"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	APICallID string    `json:"api_call_id" gorm:"size:128"`
	LatencyMs *float64  `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at" gorm:"index;index:idx_creation_logs_novel_time"`
}

// GenerationMetric 按日累计的产量统计
type GenerationMetric struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Date         string    `json:"date" gorm:"size:10;not null;uniqueIndex"`
	NovelCount   int       `json:"novel_count" gorm:"not null"`
	ChapterCount int       `json:"chapter_count" gorm:"not null"`
	WordCount    int       `json:"word_count" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type DailyPlan struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Date         string    `json:"date" gorm:"size:10;not null;uniqueIndex"`
	TargetNovels int       `json:"target_novels" gorm:"not null"`
	TargetWords  int       `json:"target_words" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// SystemState 系统级键值状态
type SystemState struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"column:state_key;size:64;not null;uniqueIndex"`
	Value     string    `json:"value" gorm:"size:255;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemState) TableName() string {
	return "system_state"
}

// AllModels 需要自动迁移的全部模型
func AllModels() []any {
	return []any{
		&Novel{},
		&Chapter{},
		&Character{},
		&PlotNode{},
		&StoryFact{},
		&CreationLog{},
		&GenerationMetric{},
		&DailyPlan{},
		&SystemState{},
	}
}
