package tempus_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/tempusrecords/internal/adapters/tempus"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeClock only moves when something sleeps on it or calls advance.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestPacer(t *testing.T) {
	Convey("Given a pacer with a 500ms interval", t, func() {
		const interval = 500 * time.Millisecond
		clock := newFakeClock()
		p := tempus.NewPacer(interval, tempus.WithClock(clock.Now, clock.Sleep))
		ctx := context.Background()

		So(p.Interval(), ShouldEqual, interval)

		Convey("When calls arrive back to back", func() {
			var releases []time.Time
			for i := 0; i < 5; i++ {
				_, err := p.Wait(ctx)
				So(err, ShouldBeNil)
				releases = append(releases, clock.Now())
			}

			Convey("Then the first is immediate and the rest are spaced by the interval", func() {
				So(clock.sleeps[0], ShouldEqual, interval)
				for i := 1; i < len(releases); i++ {
					So(releases[i].Sub(releases[i-1]), ShouldBeGreaterThanOrEqualTo, interval)
				}
				So(releases[4].Sub(releases[0]), ShouldEqual, 4*interval)
			})
		})

		Convey("When each call takes part of the interval", func() {
			_, err := p.Wait(ctx)
			So(err, ShouldBeNil)
			clock.advance(200 * time.Millisecond)
			waited, err := p.Wait(ctx)

			Convey("Then only the remainder is waited", func() {
				So(err, ShouldBeNil)
				So(waited, ShouldEqual, 300*time.Millisecond)
			})
		})

		Convey("When a call takes longer than the interval", func() {
			_, err := p.Wait(ctx)
			So(err, ShouldBeNil)
			clock.advance(2 * time.Second)
			waited, err := p.Wait(ctx)

			Convey("Then there is no wait", func() {
				So(err, ShouldBeNil)
				So(waited, ShouldEqual, time.Duration(0))
				So(len(clock.sleeps), ShouldEqual, 0)
			})
		})

		Convey("When the context is canceled while waiting", func() {
			_, err := p.Wait(ctx)
			So(err, ShouldBeNil)
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = p.Wait(canceled)

			Convey("Then the wait fails with the context error", func() {
				So(err, ShouldEqual, context.Canceled)
			})

			Convey("And the next wait is still paced from the last release", func() {
				waited, err := p.Wait(ctx)
				So(err, ShouldBeNil)
				So(waited, ShouldEqual, interval)
			})
		})
	})

	Convey("Given a pacer without an interval", t, func() {
		clock := newFakeClock()
		p := tempus.NewPacer(0, tempus.WithClock(clock.Now, clock.Sleep))

		Convey("Then calls never wait", func() {
			for i := 0; i < 3; i++ {
				waited, err := p.Wait(context.Background())
				So(err, ShouldBeNil)
				So(waited, ShouldEqual, time.Duration(0))
			}
			So(len(clock.sleeps), ShouldEqual, 0)
		})
	})

	Convey("Given a pacer on the wall clock", t, func() {
		const interval = 20 * time.Millisecond
		p := tempus.NewPacer(interval)

		Convey("When waiting three times", func() {
			start := time.Now()
			for i := 0; i < 3; i++ {
				_, err := p.Wait(context.Background())
				So(err, ShouldBeNil)
			}

			Convey("Then at least two intervals have passed", func() {
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 2*interval)
			})
		})
	})
}
