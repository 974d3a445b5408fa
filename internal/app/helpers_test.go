package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func toneWAV(t *testing.T, rate int, seconds, freq float64) []byte {
	t.Helper()
	samples := make([]float64, int(float64(rate)*seconds))
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	b, err := audio.EncodeMono(&audio.Clip{Samples: samples, SampleRate: rate})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// listener records every payload a hub peer receives on one topic.
type listener struct {
	mu       sync.Mutex
	payloads [][]byte
}

func listen(t *testing.T, p bus.Bus, topic bus.Topic) *listener {
	t.Helper()
	l := &listener{}
	if _, err := p.Subscribe(context.Background(), topic, func(_ context.Context, b []byte) {
		l.mu.Lock()
		l.payloads = append(l.payloads, b)
		l.mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return l
}

func (l *listener) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payloads)
}

func (l *listener) commands() []command.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []command.Command
	for _, b := range l.payloads {
		if env, err := command.Decode(b); err == nil {
			out = append(out, env.Command)
		}
	}
	return out
}

func encode(t *testing.T, cmd command.Command, ts int64) []byte {
	t.Helper()
	b, err := command.Encode(cmd, ts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

type fakeRecorder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	data     []byte
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop(context.Context) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if r.data == nil {
		return nil, "", errors.New("nothing captured")
	}
	return r.data, "wav", nil
}

func (r *fakeRecorder) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

type fixedSource struct {
	ms  int64
	err error
}

func (f fixedSource) ServerTime(context.Context) (int64, error) { return f.ms, f.err }
