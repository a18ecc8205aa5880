package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	slogmulti "github.com/samber/slog-multi"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/project-fusion/fusion-backend/config"
)

func TestSetup(t *testing.T) {
	Convey("With telemetry disabled", t, func() {
		shutdown, err := Setup(context.Background(), config.Telemetry{Enabled: false}, "fusion-backend")

		So(err, ShouldBeNil)
		So(shutdown(context.Background()), ShouldBeNil)
	})
}

func TestNewLogger(t *testing.T) {
	Convey("Given a JSON logger at warn level", t, func() {
		var out bytes.Buffer
		level := new(slog.LevelVar)
		level.Set(slog.LevelWarn)
		logger := NewLogger(&out, config.Log{Format: "json"}, level, "fusion-backend", false)

		Convey("records below the level are dropped", func() {
			logger.Info("quiet")
			So(out.Len(), ShouldEqual, 0)
		})

		Convey("raising verbosity at runtime takes effect", func() {
			level.Set(slog.LevelDebug)
			logger.Debug("loud")
			So(out.String(), ShouldContainSubstring, `"msg":"loud"`)
			So(out.String(), ShouldContainSubstring, `"service":"fusion-backend"`)
		})
	})

	Convey("Given a bridged text logger", t, func() {
		var out bytes.Buffer
		level := new(slog.LevelVar)
		logger := NewLogger(&out, config.Log{Format: "text"}, level, "fusion-backend", true)

		logger.Info("bridged", "k", "v")
		logger.Debug("hidden")

		So(out.String(), ShouldContainSubstring, "msg=bridged")
		So(out.String(), ShouldContainSubstring, "k=v")
		So(out.String(), ShouldNotContainSubstring, "hidden")
	})

	Convey("Given a branch behind the level gate", t, func() {
		var branch bytes.Buffer
		level := new(slog.LevelVar)
		level.Set(slog.LevelWarn)
		inner := slog.NewTextHandler(&branch, &slog.HandlerOptions{Level: slog.LevelDebug})
		var primary bytes.Buffer
		logger := slog.New(slogmulti.Fanout(
			slog.NewTextHandler(&primary, &slog.HandlerOptions{Level: level}),
			slogmulti.Pipe(levelGate(level)).Handler(inner),
		))

		logger.Info("below")
		logger.Warn("above")

		Convey("both outputs follow the shared level", func() {
			So(branch.String(), ShouldNotContainSubstring, "below")
			So(branch.String(), ShouldContainSubstring, "msg=above")
			So(primary.String(), ShouldContainSubstring, "msg=above")
		})

		Convey("lowering the level opens the branch", func() {
			level.Set(slog.LevelDebug)
			logger.Debug("now visible")
			So(branch.String(), ShouldContainSubstring, "now visible")
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("The telemetry middleware passes responses through", t, func() {
		h := Middleware("fusion-backend")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("ok"))
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/things", nil))

		So(rec.Code, ShouldEqual, http.StatusAccepted)
		So(rec.Body.String(), ShouldEqual, "ok")
	})
}
