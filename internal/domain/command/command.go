// Package command defines the closed set of room commands a master sends to
// satellites and their JSON wire format.
package command

// Action is the wire discriminator of a command.
type Action string

// Wire actions.
const (
	ActionStartRecord          Action = "START_RECORD"
	ActionStartRecordScheduled Action = "START_RECORD_SCHEDULED"
	ActionStopRecord           Action = "STOP_RECORD"
	ActionPreloadTrack         Action = "PRELOAD_MR"
	ActionScoreSync            Action = "SCORE_SYNC"
	ActionPageSync             Action = "PAGE_SYNC"
	ActionLyricsSync           Action = "LYRICS_SYNC"
	ActionAllLyricsSync        Action = "ALL_LYRICS_SYNC"
	ActionClearRoom            Action = "CLEAR_ROOM"
	ActionStudioMode           Action = "STUDIO_MODE"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{
		ActionStartRecord, ActionStartRecordScheduled, ActionStopRecord, ActionPreloadTrack,
		ActionScoreSync, ActionPageSync, ActionLyricsSync, ActionAllLyricsSync,
		ActionClearRoom, ActionStudioMode,
	}
}

// Command is a room command. The set of implementations is closed to this
// package; switch on the concrete type to handle one.
type Command interface {
	Action() Action
	command()
}

// StartRecord begins capture immediately.
type StartRecord struct{}

// StartRecordScheduled begins capture when authority time reaches TargetTimeMs.
type StartRecordScheduled struct {
	TargetTimeMs int64
}

// StopRecord ends capture and cancels any pending scheduled start.
type StopRecord struct{}

// PreloadTrack tells satellites which backing track to fetch.
type PreloadTrack struct {
	URL string
}

// ScoreSync shares the score page images.
type ScoreSync struct {
	URLs []string
}

// PageSync moves everyone to a score page.
type PageSync struct {
	Page int
}

// LyricsSync shares one block of lyric text.
type LyricsSync struct {
	Text string
}

// AllLyricsSync replaces the full lyric list.
type AllLyricsSync struct {
	Texts []string
}

// ClearRoom wipes shared room materials.
type ClearRoom struct{}

// StudioMode toggles studio presentation on satellites.
type StudioMode struct {
	Enabled bool
}

func (StartRecord) Action() Action          { return ActionStartRecord }
func (StartRecordScheduled) Action() Action { return ActionStartRecordScheduled }
func (StopRecord) Action() Action           { return ActionStopRecord }
func (PreloadTrack) Action() Action         { return ActionPreloadTrack }
func (ScoreSync) Action() Action            { return ActionScoreSync }
func (PageSync) Action() Action             { return ActionPageSync }
func (LyricsSync) Action() Action           { return ActionLyricsSync }
func (AllLyricsSync) Action() Action        { return ActionAllLyricsSync }
func (ClearRoom) Action() Action            { return ActionClearRoom }
func (StudioMode) Action() Action           { return ActionStudioMode }

func (StartRecord) command()          {}
func (StartRecordScheduled) command() {}
func (StopRecord) command()           {}
func (PreloadTrack) command()         {}
func (ScoreSync) command()            {}
func (PageSync) command()             {}
func (LyricsSync) command()           {}
func (AllLyricsSync) command()        {}
func (ClearRoom) command()            {}
func (StudioMode) command()           {}
