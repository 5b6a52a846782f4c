package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			err := Init()

			Convey("Then it should be available", func() {
				So(err, ShouldBeNil)
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
			})
		})
	})
}

func TestLoggerNew(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		var global, local bytes.Buffer
		So(Init(WithWriter(&global)), ShouldBeNil)

		Convey("When a standalone logger is built", func() {
			l, err := New(WithWriter(&local), WithFormat("json"))
			So(err, ShouldBeNil)
			l.Info(context.Background(), "local only", Int64("map_id", 4821))

			Convey("Then it writes to its own sink", func() {
				So(global.Len(), ShouldEqual, 0)
				So(local.String(), ShouldContainSubstring, `"map_id":4821`)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithFormat("json")), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Named("fetcher").With(String("run_id", "r-1")).Info(ctx, "fetched",
				String("map", "jump_beef"),
				Int("attempts", 2),
				Error(errors.New("boom")),
			)

			var rec map[string]any
			So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)

			Convey("Then the record carries every field", func() {
				So(rec["msg"], ShouldEqual, "fetched")
				So(rec["component"], ShouldEqual, "fetcher")
				So(rec["run_id"], ShouldEqual, "r-1")
				So(rec["map"], ShouldEqual, "jump_beef")
				So(rec["attempts"], ShouldEqual, float64(2))
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level filters a record", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			defer func() { _ = SetLevelString("info") }()
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			Convey("Then only the warning is written", func() {
				out := buf.String()
				So(strings.Contains(out, "hidden"), ShouldBeFalse)
				So(out, ShouldContainSubstring, "shown")
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}
