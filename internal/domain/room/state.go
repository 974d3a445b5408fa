// Package room holds the shared command state of a rehearsal room and
// renders it back as a replay burst for late joiners.
package room

import (
	"slices"
	"sync"

	"github.com/okian/chorus/internal/domain/command"
)

// View is the satellite-visible room state.
type View struct {
	StudioMode      bool     `json:"studioMode"`
	Recording       bool     `json:"recording"`
	ScheduledAtMs   int64    `json:"scheduledAt,omitempty"`
	BackingTrackURL string   `json:"backingTrack,omitempty"`
	ScoreURLs       []string `json:"scores"`
	Page            int      `json:"page"`
	Lyric           string   `json:"lyric,omitempty"`
	Lyrics          []string `json:"lyrics"`
}

// State applies commands last-wins. The zero value is not usable; call
// NewState.
type State struct {
	mu   sync.RWMutex
	view View
}

// NewState returns an empty room.
func NewState() *State {
	s := &State{}
	s.reset()
	return s
}

func (s *State) reset() {
	s.view = View{ScoreURLs: []string{}, Lyrics: []string{}}
}

// Apply folds cmd into the state.
func (s *State) Apply(cmd command.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := cmd.(type) {
	case command.StartRecord:
		s.view.Recording = true
		s.view.ScheduledAtMs = 0
	case command.StartRecordScheduled:
		s.view.Recording = true
		s.view.ScheduledAtMs = c.TargetTimeMs
	case command.StopRecord:
		s.view.Recording = false
		s.view.ScheduledAtMs = 0
	case command.PreloadTrack:
		s.view.BackingTrackURL = c.URL
	case command.ScoreSync:
		s.view.ScoreURLs = slices.Clone(c.URLs)
		if s.view.ScoreURLs == nil {
			s.view.ScoreURLs = []string{}
		}
	case command.PageSync:
		s.view.Page = c.Page
	case command.LyricsSync:
		s.view.Lyric = c.Text
		if c.Text != "" && !slices.Contains(s.view.Lyrics, c.Text) {
			s.view.Lyrics = append(s.view.Lyrics, c.Text)
		}
	case command.AllLyricsSync:
		s.view.Lyrics = slices.Clone(c.Texts)
		if s.view.Lyrics == nil {
			s.view.Lyrics = []string{}
		}
	case command.ClearRoom:
		studio := s.view.StudioMode
		s.reset()
		s.view.StudioMode = studio
	case command.StudioMode:
		s.view.StudioMode = c.Enabled
	}
}

// View returns a copy of the current state.
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.view
	v.ScoreURLs = slices.Clone(s.view.ScoreURLs)
	v.Lyrics = slices.Clone(s.view.Lyrics)
	return v
}

// Replay renders the state as the command burst a late joiner needs to
// converge. A scheduled take replays as its schedule, so satellites already
// armed for the target keep their timer and a joiner whose target has passed
// starts late with a matching offset.
func (s *State) Replay() []command.Command {
	v := s.View()

	out := []command.Command{command.StudioMode{Enabled: v.StudioMode}}
	switch {
	case v.Recording && v.ScheduledAtMs != 0:
		out = append(out, command.StartRecordScheduled{TargetTimeMs: v.ScheduledAtMs})
	case v.Recording:
		out = append(out, command.StartRecord{})
	default:
		out = append(out, command.StopRecord{})
	}
	if v.BackingTrackURL != "" {
		out = append(out, command.PreloadTrack{URL: v.BackingTrackURL})
	}
	if len(v.ScoreURLs) > 0 {
		out = append(out, command.ScoreSync{URLs: v.ScoreURLs})
	}
	out = append(out, command.PageSync{Page: v.Page})
	if len(v.Lyrics) > 0 {
		out = append(out, command.AllLyricsSync{Texts: v.Lyrics})
	}
	return out
}
