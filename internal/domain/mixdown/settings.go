package mixdown

// BackingTrackID keys the backing track in Settings.Tracks.
const BackingTrackID = "__mr__"

// Default track gains.
const (
	DefaultVocalVolume   = 1.0
	DefaultBackingVolume = 0.5
)

// TrackSettings are the per-track mixer controls. A nil Volume means the
// track default.
type TrackSettings struct {
	Volume  *float64 `json:"volume,omitempty"`
	Muted   bool     `json:"muted,omitempty"`
	Pan     float64  `json:"pan,omitempty"`
	NudgeMs int64    `json:"nudgeMs,omitempty"`
}

// EQ holds the master bus band gains in dB.
type EQ struct {
	LowDB  float64 `json:"low"`
	MidDB  float64 `json:"mid"`
	HighDB float64 `json:"high"`
}

// Settings configures one render. Tracks is keyed by artifact ID, with
// BackingTrackID for the backing track.
type Settings struct {
	Tracks map[string]TrackSettings `json:"tracks,omitempty"`
	EQ     EQ                       `json:"eq"`
	Reverb float64                  `json:"reverb"`
}

func (s Settings) track(id string) TrackSettings {
	return s.Tracks[id]
}

func (t TrackSettings) gain(def float64) float64 {
	if t.Muted {
		return 0
	}
	if t.Volume == nil {
		return def
	}
	return *t.Volume
}

func clampUnit(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
