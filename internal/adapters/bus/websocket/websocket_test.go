package websocket_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/adapters/bus/websocket"
	"github.com/okian/chorus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestRemotePeer(t *testing.T) {
	Convey("Given a hub served over websocket", t, func() {
		ctx := context.Background()
		hub := bus.NewHub(bus.WithLogger(logger.Nop()))
		srv := websocket.NewServer(hub, websocket.WithServerLogger(logger.Nop()))
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			srv.Serve(w, r, "choir")
		}))
		defer ts.Close()

		master := hub.Join("choir")
		defer master.Close()
		telemetry := make(chan string, 8)
		_, err := master.Subscribe(ctx, bus.TopicTelemetry, func(_ context.Context, p []byte) { telemetry <- string(p) })
		So(err, ShouldBeNil)

		client, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), websocket.WithClientLogger(logger.Nop()))
		So(err, ShouldBeNil)
		defer client.Close()

		commands := make(chan string, 8)
		_, err = client.Subscribe(ctx, bus.TopicCommand, func(_ context.Context, p []byte) { commands <- string(p) })
		So(err, ShouldBeNil)
		So(waitFor(func() bool { return hub.Peers("choir") == 2 }), ShouldBeTrue)

		Convey("Commands from the master reach the remote satellite", func() {
			So(master.Publish(ctx, bus.TopicCommand, []byte(`{"action":"PAGE_SYNC","page":2,"timestamp":1}`)), ShouldBeNil)
			select {
			case got := <-commands:
				So(got, ShouldEqual, `{"action":"PAGE_SYNC","page":2,"timestamp":1}`)
			case <-time.After(2 * time.Second):
				t.Fatal("command not delivered")
			}
		})

		Convey("Telemetry from the satellite reaches the master", func() {
			So(client.Publish(ctx, bus.TopicTelemetry, []byte(`{"part":"Alto","pitch":null,"timestamp":5}`)), ShouldBeNil)
			select {
			case got := <-telemetry:
				So(got, ShouldEqual, `{"part":"Alto","pitch":null,"timestamp":5}`)
			case <-time.After(2 * time.Second):
				t.Fatal("telemetry not delivered")
			}
		})

		Convey("Closing the client detaches its peer", func() {
			So(client.Close(), ShouldBeNil)
			So(waitFor(func() bool { return hub.Peers("choir") == 1 }), ShouldBeTrue)
			So(errors.Is(client.Publish(ctx, bus.TopicCommand, []byte(`{}`)), bus.ErrClosed), ShouldBeTrue)
		})
	})
}
