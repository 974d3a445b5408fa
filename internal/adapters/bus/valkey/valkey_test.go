package valkey

import (
	"testing"

	"github.com/okian/chorus/internal/adapters/bus"
)

func TestChannel(t *testing.T) {
	if got := Channel("Um9vbSAx", bus.TopicCommand); got != "chorus:Um9vbSAx:command" {
		t.Fatalf("Channel = %q", got)
	}
}

func TestPublishRejectsUnknownTopic(t *testing.T) {
	b := &Bus{id: "x"}
	if err := b.Publish(t.Context(), "lyrics", nil); err != bus.ErrUnknownTopic {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
	if _, err := b.Subscribe(t.Context(), "lyrics", nil); err != bus.ErrUnknownTopic {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestClosedBus(t *testing.T) {
	b := &Bus{id: "x"}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Publish(t.Context(), bus.TopicCommand, nil); err != bus.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := b.Subscribe(t.Context(), bus.TopicCommand, nil); err != bus.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
