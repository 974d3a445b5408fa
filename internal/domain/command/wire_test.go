package command_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/chorus/internal/domain/command"
	. "github.com/smartystreets/goconvey/convey"
)

func every() []command.Command {
	return []command.Command{
		command.StartRecord{},
		command.StartRecordScheduled{TargetTimeMs: 1_700_000_004_000},
		command.StopRecord{},
		command.PreloadTrack{URL: "http://x/objects/backing_tracks/cm9vbQ/1_song.wav"},
		command.ScoreSync{URLs: []string{"a.png", "b.png"}},
		command.PageSync{Page: 0},
		command.LyricsSync{Text: "Hallelujah"},
		command.AllLyricsSync{Texts: []string{"v1", "v2"}},
		command.ClearRoom{},
		command.StudioMode{Enabled: true},
	}
}

func TestEveryActionIsEncodable(t *testing.T) {
	Convey("Every action in the closed set has an encoder and decoder", t, func() {
		seen := map[command.Action]bool{}
		for _, cmd := range every() {
			b, err := command.Encode(cmd, 42)
			So(err, ShouldBeNil)

			env, err := command.Decode(b)
			So(err, ShouldBeNil)
			So(env.TimestampMs, ShouldEqual, 42)
			So(env.Command, ShouldResemble, cmd)
			seen[cmd.Action()] = true
		}
		for _, a := range command.Actions() {
			So(seen[a], ShouldBeTrue)
		}
	})
}

func TestWireShape(t *testing.T) {
	Convey("The wire carries action, payload fields and timestamp at the top level", t, func() {
		b, err := command.Encode(command.StartRecordScheduled{TargetTimeMs: 9000}, 5000)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `{"action":"START_RECORD_SCHEDULED","targetTime":9000,"timestamp":5000}`)

		b, err = command.Encode(command.PageSync{Page: 0}, 1)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `{"action":"PAGE_SYNC","page":0,"timestamp":1}`)

		var raw map[string]any
		b, _ = command.Encode(command.PreloadTrack{URL: "u"}, 7)
		So(json.Unmarshal(b, &raw), ShouldBeNil)
		So(raw["action"], ShouldEqual, "PRELOAD_MR")
		So(raw["url"], ShouldEqual, "u")
	})
}

func TestDecodeTolerance(t *testing.T) {
	Convey("Given inbound messages from other versions", t, func() {
		Convey("Unknown actions are reported so receivers can ignore them", func() {
			_, err := command.Decode([]byte(`{"action":"METRONOME_SYNC","bpm":120,"timestamp":1}`))
			So(errors.Is(err, command.ErrUnknownAction), ShouldBeTrue)
		})

		Convey("Unknown fields on known actions are ignored", func() {
			env, err := command.Decode([]byte(`{"action":"PAGE_SYNC","page":3,"extra":true,"timestamp":1}`))
			So(err, ShouldBeNil)
			So(env.Command, ShouldResemble, command.PageSync{Page: 3})
		})

		Convey("Missing required fields are malformed", func() {
			for _, raw := range []string{
				`{"action":"START_RECORD_SCHEDULED","timestamp":1}`,
				`{"action":"PAGE_SYNC","timestamp":1}`,
				`{"action":"PRELOAD_MR"}`,
				`{"action":"LYRICS_SYNC"}`,
				`not json`,
			} {
				_, err := command.Decode([]byte(raw))
				So(errors.Is(err, command.ErrMalformed), ShouldBeTrue)
			}
		})

		Convey("Publish ids travel with the command", func() {
			b, err := command.EncodeID(command.PageSync{Page: 2}, 10, "pub-1")
			So(err, ShouldBeNil)
			env, err := command.Decode(b)
			So(err, ShouldBeNil)
			So(env.ID, ShouldEqual, "pub-1")
			So(env.Command, ShouldResemble, command.PageSync{Page: 2})

			plain, _ := command.Encode(command.PageSync{Page: 2}, 10)
			So(string(plain), ShouldNotContainSubstring, `"id"`)
			env, err = command.Decode(plain)
			So(err, ShouldBeNil)
			So(env.ID, ShouldBeEmpty)
		})
	})
}
