package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When Init is called twice", func() {
			So(Init(), ShouldBeNil)
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When Init gets an unknown level", func() {
			err := Init(WithLevel("chatty"))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	Convey("Given a json logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat("JSON"), WithWriter(&buf), WithLevel("debug")), ShouldBeNil)
		defer func() { _ = Init() }()

		ctx := context.Background()
		Named("workflow").With(String("hackathon_id", "h1")).Info(ctx, "graded",
			String("registration_id", "r1"),
			Int64("version", 3),
			Bool("prioritized", true),
			Duration("took", 5*time.Millisecond),
			Error(errors.New("boom")),
		)

		Convey("Then every field appears in the record", func() {
			var rec map[string]any
			So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
			So(rec["msg"], ShouldEqual, "graded")
			So(rec["component"], ShouldEqual, "workflow")
			So(rec["hackathon_id"], ShouldEqual, "h1")
			So(rec["registration_id"], ShouldEqual, "r1")
			So(rec["prioritized"], ShouldEqual, true)
			So(rec["error"], ShouldEqual, "boom")
			So(rec["source"], ShouldContainSubstring, "logger_test.go")
		})
	})
}

func TestLoggerLevels(t *testing.T) {
	Convey("Given a logger at warn level", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithLevel("warn")), ShouldBeNil)
		defer func() { _ = Init() }()

		ctx := context.Background()
		Get().Debug(ctx, "hidden")
		Get().Info(ctx, "hidden too")
		Get().Warn(ctx, "shown")

		Convey("Then only warn and above are written", func() {
			out := buf.String()
			So(strings.Contains(out, "hidden"), ShouldBeFalse)
			So(out, ShouldContainSubstring, "shown")
		})

		Convey("Then SetLevelString accepts the documented names", func() {
			for _, lvl := range []string{"debug", "INFO", " warning ", "error", ""} {
				So(SetLevelString(lvl), ShouldBeNil)
			}
			So(SetLevelString("verbose"), ShouldNotBeNil)
		})
	})
}

func TestNop(t *testing.T) {
	Convey("A nop logger accepts calls without output", t, func() {
		l := NewNop().Named("x").With(String("k", "v"))
		So(func() { l.Error(context.Background(), "ignored") }, ShouldNotPanic)
	})
}
