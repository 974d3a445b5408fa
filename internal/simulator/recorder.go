package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/okian/chorus/internal/audio"
)

// ClipRecorder pretends to capture a microphone by looping a clip for as
// long as it was recording.
type ClipRecorder struct {
	clip *audio.Clip
	now  func() time.Time

	mu        sync.Mutex
	recording bool
	started   time.Time
}

// NewClipRecorder returns a recorder over clip.
func NewClipRecorder(clip *audio.Clip) *ClipRecorder {
	return &ClipRecorder{clip: clip, now: time.Now}
}

// Start implements service.Recorder.
func (r *ClipRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyActive
	}
	r.recording, r.started = true, r.now()
	return nil
}

// Stop implements service.Recorder.
func (r *ClipRecorder) Stop(context.Context) ([]byte, string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, "", ErrNotRecording
	}
	elapsed := r.now().Sub(r.started)
	r.recording = false
	r.mu.Unlock()

	n := int(elapsed.Seconds() * float64(r.clip.SampleRate))
	out := make([]float64, n)
	if len(r.clip.Samples) > 0 {
		for i := range out {
			out[i] = r.clip.Samples[i%len(r.clip.Samples)]
		}
	}
	data, err := audio.EncodeMono(&audio.Clip{Samples: out, SampleRate: r.clip.SampleRate})
	if err != nil {
		return nil, "", err
	}
	return data, "wav", nil
}
