package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/okian/tempusrecords/internal/adapters/tempus"
	"github.com/okian/tempusrecords/internal/adapters/tempus/tempustest"
	service "github.com/okian/tempusrecords/internal/app"
	"github.com/okian/tempusrecords/internal/domain/model"
	"github.com/okian/tempusrecords/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

// scriptedFetcher answers from a map of outcomes and records the call order.
type scriptedFetcher struct {
	outcomes map[string]model.Outcome
	calls    []string
	onCall   func(n int)
}

func (f *scriptedFetcher) Fetch(_ context.Context, _ model.PlayerID, _ model.Class, e model.MapEntry) model.Outcome {
	f.calls = append(f.calls, e.Name)
	if f.onCall != nil {
		f.onCall(len(f.calls))
	}
	if o, ok := f.outcomes[e.Name]; ok {
		return o
	}
	return model.Failure{Reason: model.ReasonNoRecord, Attempts: 1}
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newService(f service.Fetcher) *service.Service {
	return service.New(f,
		service.WithClock(fixedClock()),
		service.WithRunIDs(func() string { return "run-1" }),
	)
}

func catalogOf(n int) []model.MapEntry {
	out := make([]model.MapEntry, n)
	for i := range out {
		out[i] = model.MapEntry{Name: fmt.Sprintf("jump_%02d", i), Tier: i%6 + 1, MapRank: fmt.Sprint(i)}
	}
	return out
}

func TestService_Run(t *testing.T) {
	ctx := context.Background()

	Convey("Given the two-map example", t, func() {
		catalog := []model.MapEntry{
			{Name: "map_a", Tier: 3, MapRank: "10"},
			{Name: "map_b", Tier: 1, MapRank: "50"},
		}
		f := &scriptedFetcher{outcomes: map[string]model.Outcome{
			"map_a": model.Success{Time: 120.5, Rank: 4, Attempts: 1},
			"map_b": model.Failure{Reason: model.ReasonNoRecord, Attempts: 1},
		}}

		Convey("When the run completes", func() {
			res, err := newService(f).Run(ctx, 42, model.ClassSoldier, catalog)

			Convey("Then map_a is a record and map_b is failed", func() {
				So(err, ShouldBeNil)
				So(res.Records, ShouldResemble, []model.ReportRow{
					{MapName: "map_a", Tier: 3, MapRank: "10", Time: 120.5, Rank: 4},
				})
				So(res.Failed, ShouldResemble, []model.FailedMapRow{
					{MapName: "map_b", Tier: 1, MapRank: "50", Reason: model.ReasonNoRecord},
				})
				So(res.RunID, ShouldEqual, "run-1")
				So(res.PlayerID, ShouldEqual, model.PlayerID(42))
				So(res.Class, ShouldEqual, model.ClassSoldier)
				So(res.FinishedAt.After(res.StartedAt), ShouldBeTrue)
			})
		})
	})

	Convey("Given a catalog with mixed outcomes", t, func() {
		catalog := catalogOf(10)
		outcomes := map[string]model.Outcome{}
		for i, e := range catalog {
			switch i % 4 {
			case 0:
				outcomes[e.Name] = model.Success{Time: float64(i) + 0.5, Rank: i + 1, Attempts: 1}
			case 1:
				outcomes[e.Name] = model.Failure{Reason: model.ReasonExhaustedRetries, Err: errors.New("503"), Attempts: 5}
			case 2:
				outcomes[e.Name] = model.Failure{Reason: model.ReasonRejected, Attempts: 1}
			case 3:
				outcomes[e.Name] = model.Success{Time: 1000, Rank: 1, Attempts: 3}
			}
		}
		f := &scriptedFetcher{outcomes: outcomes}

		Convey("When the run completes", func() {
			res, err := newService(f).Run(ctx, 7, model.ClassDemoman, catalog)
			So(err, ShouldBeNil)

			Convey("Then every map is fetched once in catalog order", func() {
				want := make([]string, len(catalog))
				for i, e := range catalog {
					want[i] = e.Name
				}
				So(f.calls, ShouldResemble, want)
			})

			Convey("Then the tables partition the catalog", func() {
				So(res.Total(), ShouldEqual, len(catalog))
				seen := map[string]int{}
				for _, r := range res.Records {
					seen[r.MapName]++
				}
				for _, r := range res.Failed {
					seen[r.MapName]++
				}
				So(len(seen), ShouldEqual, len(catalog))
				for _, n := range seen {
					So(n, ShouldEqual, 1)
				}
			})

			Convey("Then each table keeps catalog order", func() {
				So(res.Records[0].MapName, ShouldEqual, "jump_00")
				So(res.Records[1].MapName, ShouldEqual, "jump_03")
				So(res.Records[2].MapName, ShouldEqual, "jump_04")
				So(res.Failed[0].MapName, ShouldEqual, "jump_01")
				So(res.Failed[1].MapName, ShouldEqual, "jump_02")
			})

			Convey("Then failures are counted by reason", func() {
				byReason := res.FailuresByReason()
				So(byReason[model.ReasonExhaustedRetries], ShouldEqual, 3)
				So(byReason[model.ReasonRejected], ShouldEqual, 2)
			})
		})

		Convey("When progress is read during and after the run", func() {
			svc := newService(f)
			var mid service.Progress
			f.onCall = func(n int) {
				if n == 5 {
					mid = svc.Progress()
				}
			}
			res, err := svc.Run(ctx, 7, model.ClassDemoman, catalog)
			So(err, ShouldBeNil)

			Convey("Then it tracks the maps done", func() {
				So(mid.Running, ShouldBeTrue)
				So(mid.Done, ShouldEqual, 4)
				So(mid.Total, ShouldEqual, 10)
				So(mid.Class, ShouldEqual, "Demoman")

				final := svc.Progress()
				So(final.Running, ShouldBeFalse)
				So(final.Done, ShouldEqual, 10)
				So(final.Records, ShouldEqual, len(res.Records))
				So(final.Failed, ShouldEqual, len(res.Failed))
				So(final.RunID, ShouldEqual, "run-1")
			})
		})

		Convey("When run twice", func() {
			first, err := newService(f).Run(ctx, 7, model.ClassDemoman, catalog)
			So(err, ShouldBeNil)
			second, err := newService(f).Run(ctx, 7, model.ClassDemoman, catalog)
			So(err, ShouldBeNil)

			Convey("Then the tables are identical", func() {
				So(second.Records, ShouldResemble, first.Records)
				So(second.Failed, ShouldResemble, first.Failed)
			})
		})
	})

	Convey("Given an empty catalog", t, func() {
		res, err := newService(&scriptedFetcher{}).Run(ctx, 1, model.ClassSoldier, nil)

		Convey("Then both tables are empty", func() {
			So(err, ShouldBeNil)
			So(res.Records, ShouldBeEmpty)
			So(res.Failed, ShouldBeEmpty)
		})
	})

	Convey("Given a catalog naming a map twice", t, func() {
		catalog := []model.MapEntry{{Name: "a"}, {Name: "b"}, {Name: "a"}}
		f := &scriptedFetcher{}
		_, err := newService(f).Run(ctx, 1, model.ClassSoldier, catalog)

		Convey("Then the run is refused before any fetch", func() {
			So(errors.Is(err, service.ErrDuplicateMap), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})
	})

	Convey("Given a run that is canceled midway", t, func() {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		f := &scriptedFetcher{onCall: func(n int) {
			if n == 3 {
				cancel()
			}
		}}
		res, err := newService(f).Run(runCtx, 1, model.ClassSoldier, catalogOf(6))

		Convey("Then it aborts without a result", func() {
			So(errors.Is(err, service.ErrRunCanceled), ShouldBeTrue)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(res.Records, ShouldBeNil)
			So(res.Failed, ShouldBeNil)
			So(len(f.calls), ShouldEqual, 3)
		})
	})
}

func TestService_RunWithTempusClient(t *testing.T) {
	Convey("Given a Tempus server and a paced client", t, func() {
		srv := tempustest.NewServer()
		defer srv.Close()
		srv.Script("map_a", tempustest.ServerError(), tempustest.Record(120.5, 4))
		srv.Script("map_b", tempustest.NoRecord())
		srv.Script("map_c", tempustest.Reply{Status: 400})

		client := tempus.NewClient(
			tempus.WithBaseURL(srv.URL),
			tempus.WithMinInterval(10*time.Millisecond),
			tempus.WithMaxAttempts(3),
		)
		catalog := []model.MapEntry{
			{Name: "map_a", Tier: 3, MapRank: "10"},
			{Name: "map_b", Tier: 1, MapRank: "50"},
			{Name: "map_c", Tier: 2, MapRank: "20"},
		}

		Convey("When the run completes", func() {
			res, err := service.New(client).Run(context.Background(), 42, model.ClassSoldier, catalog)

			Convey("Then outcomes are joined with catalog metadata", func() {
				So(err, ShouldBeNil)
				So(res.Records, ShouldResemble, []model.ReportRow{
					{MapName: "map_a", Tier: 3, MapRank: "10", Time: 120.5, Rank: 4},
				})
				So(res.Failed, ShouldResemble, []model.FailedMapRow{
					{MapName: "map_b", Tier: 1, MapRank: "50", Reason: model.ReasonNoRecord},
					{MapName: "map_c", Tier: 2, MapRank: "20", Reason: model.ReasonRejected},
				})
				So(len(res.RunID), ShouldEqual, 36)
			})

			Convey("Then request starts respect the interval", func() {
				hits := srv.Hits()
				So(len(hits), ShouldEqual, 4)
				for i := 1; i < len(hits); i++ {
					// server timestamps trail the client's release slightly
					So(hits[i].At.Sub(hits[i-1].At), ShouldBeGreaterThan, 5*time.Millisecond)
				}
			})
		})
	})
}

// logLine returns the first JSON log line whose message starts with msg,
// from the msg key on so the wall-clock timestamp is left out.
func logLine(buf *bytes.Buffer, msg string) string {
	for _, line := range strings.Split(buf.String(), "\n") {
		if i := strings.Index(line, `"msg":"`+msg); i >= 0 {
			return line[i:]
		}
	}
	return ""
}

func TestService_RunLogs(t *testing.T) {
	ctx := context.Background()

	Convey("Given failures of every kind in a catalog with map ids", t, func() {
		catalog := []model.MapEntry{
			{Name: "jump_rej", ID: 301, Tier: 2, MapRank: "5"},
			{Name: "jump_none", ID: 0, Tier: 1, MapRank: "9"},
			{Name: "jump_503", ID: 877, Tier: 4, MapRank: "2"},
			{Name: "jump_ok", ID: 12, Tier: 3, MapRank: "1"},
		}
		f := &scriptedFetcher{outcomes: map[string]model.Outcome{
			"jump_rej":  model.Failure{Reason: model.ReasonRejected, Attempts: 1},
			"jump_none": model.Failure{Reason: model.ReasonNoRecord, Attempts: 1},
			"jump_503":  model.Failure{Reason: model.ReasonExhaustedRetries, Err: errors.New("503"), Attempts: 5},
			"jump_ok":   model.Success{Time: 12.5, Rank: 3, Attempts: 1},
		}}
		run := func() *bytes.Buffer {
			var buf bytes.Buffer
			l, err := logger.New(logger.WithWriter(&buf), logger.WithFormat("json"))
			So(err, ShouldBeNil)
			svc := service.New(f,
				service.WithLogger(l),
				service.WithClock(fixedClock()),
				service.WithRunIDs(func() string { return "run-1" }),
			)
			_, err = svc.Run(ctx, 7, model.ClassSoldier, catalog)
			So(err, ShouldBeNil)
			return &buf
		}

		Convey("When the run completes", func() {
			buf := run()

			Convey("Then failed maps are logged with their map id when known", func() {
				So(logLine(buf, "[1/4] jump_rej"), ShouldContainSubstring, `"map_id":301`)
				So(logLine(buf, "[3/4] jump_503"), ShouldContainSubstring, `"map_id":877`)
				So(logLine(buf, "[2/4] jump_none"), ShouldNotContainSubstring, "map_id")
			})

			Convey("Then the summary lists reasons in a fixed order", func() {
				summary := logLine(buf, "run finished")
				noRecord := strings.Index(summary, "failed_no_record")
				exhausted := strings.Index(summary, "failed_exhausted_retries")
				rejected := strings.Index(summary, "failed_rejected")
				So(noRecord, ShouldBeGreaterThanOrEqualTo, 0)
				So(exhausted, ShouldBeGreaterThan, noRecord)
				So(rejected, ShouldBeGreaterThan, exhausted)
				So(summary, ShouldNotContainSubstring, "failed_canceled")
			})
		})

		Convey("When run repeatedly", func() {
			first := logLine(run(), "run finished")

			Convey("Then the summary line is identical every time", func() {
				for i := 0; i < 20; i++ {
					So(logLine(run(), "run finished"), ShouldEqual, first)
				}
			})
		})
	})
}
