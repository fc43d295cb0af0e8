package eventbus

import "time"

type NovelEventType string

const (
	NovelEventChapterCommitted NovelEventType = "ChapterCommitted"
	NovelEventCompleted        NovelEventType = "NovelCompleted"
	NovelEventFailed           NovelEventType = "NovelFailed"
)

type NovelEvent struct {
	Type         NovelEventType
	NovelID      uint
	ChapterID    uint
	ChapterIndex int
	WordCount    int
	Error        string
	OccurredAt   time.Time
}

type NovelEventHandler = Handler[NovelEvent]
type NovelEventBus = Bus[NovelEventType, NovelEvent]

func NewNovelEventBus() *NovelEventBus {
	return NewBus(func(e NovelEvent) NovelEventType { return e.Type })
}
