package command

import (
	"encoding/json"
	"fmt"
)

// Envelope is a decoded command with its sender timestamp and, when the
// sender stamped one, the id of this publish.
type Envelope struct {
	Command     Command
	TimestampMs int64
	ID          string
}

type wire struct {
	Action     Action   `json:"action"`
	TargetTime *int64   `json:"targetTime,omitempty"`
	URL        *string  `json:"url,omitempty"`
	URLs       []string `json:"urls,omitempty"`
	Page       *int     `json:"page,omitempty"`
	Text       *string  `json:"text,omitempty"`
	Texts      []string `json:"texts,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
	Timestamp  int64    `json:"timestamp"`
	ID         string   `json:"id,omitempty"`
}

// Encode renders cmd as {"action": ..., <fields>, "timestamp": ts}.
func Encode(cmd Command, timestampMs int64) ([]byte, error) {
	return EncodeID(cmd, timestampMs, "")
}

// EncodeID is Encode with a publish id. Receivers drop a second delivery of
// the same id; commands without one are always applied.
func EncodeID(cmd Command, timestampMs int64, id string) ([]byte, error) {
	w := wire{Timestamp: timestampMs, ID: id}
	switch c := cmd.(type) {
	case StartRecord, StopRecord, ClearRoom:
	case StartRecordScheduled:
		w.TargetTime = &c.TargetTimeMs
	case PreloadTrack:
		w.URL = &c.URL
	case ScoreSync:
		w.URLs = nonNil(c.URLs)
	case PageSync:
		w.Page = &c.Page
	case LyricsSync:
		w.Text = &c.Text
	case AllLyricsSync:
		w.Texts = nonNil(c.Texts)
	case StudioMode:
		w.Enabled = &c.Enabled
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, cmd)
	}
	w.Action = cmd.Action()
	return json.Marshal(w)
}

// Decode parses a wire command. Unknown actions yield ErrUnknownAction and
// missing required fields ErrMalformed; receivers ignore both.
func Decode(b []byte) (Envelope, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var cmd Command
	switch w.Action {
	case ActionStartRecord:
		cmd = StartRecord{}
	case ActionStopRecord:
		cmd = StopRecord{}
	case ActionClearRoom:
		cmd = ClearRoom{}
	case ActionStartRecordScheduled:
		if w.TargetTime == nil {
			return Envelope{}, fmt.Errorf("%w: %s without targetTime", ErrMalformed, w.Action)
		}
		cmd = StartRecordScheduled{TargetTimeMs: *w.TargetTime}
	case ActionPreloadTrack:
		if w.URL == nil {
			return Envelope{}, fmt.Errorf("%w: %s without url", ErrMalformed, w.Action)
		}
		cmd = PreloadTrack{URL: *w.URL}
	case ActionScoreSync:
		cmd = ScoreSync{URLs: nonNil(w.URLs)}
	case ActionPageSync:
		if w.Page == nil {
			return Envelope{}, fmt.Errorf("%w: %s without page", ErrMalformed, w.Action)
		}
		cmd = PageSync{Page: *w.Page}
	case ActionLyricsSync:
		if w.Text == nil {
			return Envelope{}, fmt.Errorf("%w: %s without text", ErrMalformed, w.Action)
		}
		cmd = LyricsSync{Text: *w.Text}
	case ActionAllLyricsSync:
		cmd = AllLyricsSync{Texts: nonNil(w.Texts)}
	case ActionStudioMode:
		cmd = StudioMode{Enabled: w.Enabled != nil && *w.Enabled}
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownAction, w.Action)
	}
	return Envelope{Command: cmd, TimestampMs: w.Timestamp, ID: w.ID}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
