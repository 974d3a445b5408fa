package mixdown

import (
	"errors"
	"testing"
	"time"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker(2)
	tick := time.Unix(0, 0)
	tr.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	tr.Queued(Job{ID: "a", RoomID: "r", TakeID: 7})
	if s, _ := tr.Get("a"); s.Status != JobQueued || s.TakeID != 7 {
		t.Fatalf("queued state = %+v", s)
	}
	tr.Running("a")
	tr.Done("a", "http://x/a.wav")
	if s, _ := tr.Get("a"); s.Status != JobDone || s.URL != "http://x/a.wav" {
		t.Fatalf("done state = %+v", s)
	}

	tr.Queued(Job{ID: "b"})
	tr.Failed("b", &MixdownError{Failures: []ArtifactFailure{{ArtifactID: "x.wav", Err: errors.New("bad")}}})
	if s, _ := tr.Get("b"); s.Status != JobFailed || len(s.Failed) != 1 || s.Failed[0] != "x.wav" {
		t.Fatalf("failed state = %+v", s)
	}

	tr.Queued(Job{ID: "c"})
	tr.Done("c", "u")
	if _, ok := tr.Get("a"); ok {
		t.Fatal("oldest finished job should be pruned")
	}
	if _, ok := tr.Get("c"); !ok {
		t.Fatal("newest job missing")
	}
}
