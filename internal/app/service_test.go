package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/chorus/internal/adapters/repository"
	service "github.com/okian/chorus/internal/app"
	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/config"
	"github.com/okian/chorus/internal/domain/mixdown"
	. "github.com/smartystreets/goconvey/convey"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.JobQueueSize = 4
	cfg.PublicURL = "http://chorus.test"
	return cfg
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithConfig(testConfig()), service.WithStore(repository.NewMemory()))

		Convey("Rooms cannot be opened before Start", func() {
			_, err := svc.Master(context.Background(), "room")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When started", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			Reset(svc.Stop)

			Convey("Then rooms are opened once and listed", func() {
				a, err := svc.Master(ctx, "choir")
				So(err, ShouldBeNil)
				b, err := svc.Master(ctx, "choir")
				So(err, ShouldBeNil)
				So(a, ShouldEqual, b)
				So(svc.Rooms(), ShouldResemble, []string{"choir"})
				So(svc.Hub().Peers("choir"), ShouldEqual, 1)
				So(svc.GetStats()["rooms"], ShouldEqual, 1)
			})

			Convey("Then stopping marks it stopped", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})
	})
}

func TestService_Mixdown(t *testing.T) {
	Convey("Given a started service with a recorded take", t, func() {
		ctx := context.Background()
		store := repository.NewMemory(repository.WithPublicURL("http://chorus.test"))
		svc := service.New(service.WithConfig(testConfig()), service.WithStore(store))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		lib := svc.Library()
		_, _, err := lib.UploadArtifact(ctx, "room", "Soprano", 5_000, 1_500, "wav", toneWAV(t, 44100, 1.0, 440))
		So(err, ShouldBeNil)
		_, _, err = lib.UploadArtifact(ctx, "room", "Alto", 5_100, 1_700, "wav", toneWAV(t, 44100, 1.0, 330))
		So(err, ShouldBeNil)

		Convey("A mixdown job renders and stores the mix", func() {
			st, err := svc.EnqueueMixdown(ctx, "room", 5_000, mixdown.Settings{})
			So(err, ShouldBeNil)
			So(st.Status, ShouldEqual, mixdown.JobQueued)

			So(waitFor(func() bool {
				s, _ := svc.Job(st.ID)
				return s.Status == mixdown.JobDone
			}), ShouldBeTrue)
			done, ok := svc.Job(st.ID)
			So(ok, ShouldBeTrue)
			So(done.URL, ShouldEndWith, "_"+st.ID+".wav")

			path := done.URL[strings.Index(done.URL, "/objects/")+len("/objects/"):]
			obj, err := store.Get(ctx, path)
			So(err, ShouldBeNil)
			clip, err := audio.Decode(obj.Data)
			So(err, ShouldBeNil)
			So(clip.SampleRate, ShouldEqual, 44100)
			So(len(clip.Samples), ShouldEqual, 44100*27/10)
		})

		Convey("A broken vocal fails the job with its artifact named", func() {
			_, _, err := lib.UploadArtifact(ctx, "room", "Tenor", 5_200, 1_500, "wav", []byte("not a wav"))
			So(err, ShouldBeNil)
			st, err := svc.EnqueueMixdown(ctx, "room", 5_000, mixdown.Settings{})
			So(err, ShouldBeNil)
			So(waitFor(func() bool {
				s, _ := svc.Job(st.ID)
				return s.Status == mixdown.JobFailed
			}), ShouldBeTrue)
			failed, _ := svc.Job(st.ID)
			So(failed.Failed, ShouldHaveLength, 1)
			So(failed.Failed[0], ShouldStartWith, "VGVub3I_5200")
		})

		Convey("Unknown takes are rejected up front", func() {
			_, err := svc.EnqueueMixdown(ctx, "room", 1, mixdown.Settings{})
			So(errors.Is(err, service.ErrTakeNotFound), ShouldBeTrue)
		})
	})
}
