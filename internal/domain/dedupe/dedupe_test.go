package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/chorus/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("A new id is recorded", func() {
			So(d.SeenAndRecord(ctx, "a1"), ShouldBeFalse)
		})

		Convey("A repeated id is reported as seen", func() {
			d.SeenAndRecord(ctx, "a1")
			So(d.SeenAndRecord(ctx, "a1"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "a2"), ShouldBeFalse)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3), dedupe.WithTTL(0))
		for i := 0; i < 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("m%d", i))
		}

		Convey("The oldest entry is evicted first", func() {
			So(d.SeenAndRecord(ctx, "m3"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "m0"), ShouldBeFalse)
		})
	})

	Convey("Given a deduper with a TTL", t, func() {
		now := time.Unix(0, 0)
		d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(5*time.Second), dedupe.WithClock(func() time.Time { return now }))

		d.SeenAndRecord(ctx, "x")
		now = now.Add(4 * time.Second)
		So(d.SeenAndRecord(ctx, "x"), ShouldBeTrue)

		now = now.Add(2 * time.Second)
		So(d.SeenAndRecord(ctx, "x"), ShouldBeFalse)
	})

	Convey("Given concurrent deliveries of one message", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "same") {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		So(fresh, ShouldEqual, 1)
	})
}
