package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewNovelEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(NovelEventChapterCommitted, func(ctx context.Context, event NovelEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(NovelEventChapterCommitted, func(ctx context.Context, event NovelEvent) error {
		calledB = event.ChapterIndex == 3
		return nil
	})

	if err := bus.Publish(context.Background(), NovelEvent{Type: NovelEventChapterCommitted, ChapterIndex: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusRoutesByType(t *testing.T) {
	bus := NewNovelEventBus()
	called := false
	bus.Subscribe(NovelEventFailed, func(ctx context.Context, event NovelEvent) error {
		called = true
		return nil
	})

	if err := bus.Publish(context.Background(), NovelEvent{Type: NovelEventCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("handler for a different event type should not run")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewNovelEventBus()
	called := false
	unsubscribe := bus.Subscribe(NovelEventChapterCommitted, func(ctx context.Context, event NovelEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), NovelEvent{Type: NovelEventChapterCommitted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewNovelEventBus()
	errA := errors.New("err-a")
	bus.Subscribe(NovelEventFailed, func(ctx context.Context, event NovelEvent) error {
		return errA
	})
	bus.Subscribe(NovelEventFailed, func(ctx context.Context, event NovelEvent) error {
		return errors.New("err-b")
	})

	err := bus.Publish(context.Background(), NovelEvent{Type: NovelEventFailed})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error to contain err-a, got %v", err)
	}
}
