package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/project-fusion/fusion-backend/config"
	"github.com/project-fusion/fusion-backend/router"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoader(t.TempDir()).Load()
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestSetupRouter(t *testing.T) {
	Convey("Given the fully wired router", t, func() {
		cfg := testConfig(t)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		rr := router.New(router.WithLogger(logger), router.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))
		So(setupRouter(rr, cfg, logger), ShouldBeNil)

		do := func(method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, path, body)
			for k, v := range header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			rr.ServeHTTP(rec, req)
			return rec
		}

		Convey("GET /api/health returns the status document", func() {
			rec := do(http.MethodGet, "/api/health", nil, nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get(router.RequestIDHeader), ShouldNotBeEmpty)

			var body map[string]string
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldResemble, map[string]string{"status": "OK", "message": "Fusion backend running"})
		})

		Convey("POST /api/health is 404", func() {
			So(do(http.MethodPost, "/api/health", nil, nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("GET /unknown is 404", func() {
			So(do(http.MethodGet, "/unknown", nil, nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("a malformed JSON body is 400", func() {
			rec := do(http.MethodGet, "/api/health", strings.NewReader("{nope"), map[string]string{"Content-Type": "application/json"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("a malformed JSON body on an unregistered method or path is 400", func() {
			header := map[string]string{"Content-Type": "application/json"}
			So(do(http.MethodPost, "/api/health", strings.NewReader(`{"broken":`), header).Code, ShouldEqual, http.StatusBadRequest)
			So(do(http.MethodPost, "/unknown", strings.NewReader(`{"broken":`), header).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("a bare scalar JSON body is 400", func() {
			rec := do(http.MethodGet, "/api/health", strings.NewReader(`42`), map[string]string{"Content-Type": "application/json"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("registering the health route again fails at setup", func() {
			So(setupRouter(rr, cfg, logger), ShouldNotBeNil)
		})

		Convey("the dev frontend origin gets CORS headers", func() {
			rec := do(http.MethodGet, "/api/health", nil, map[string]string{"Origin": "http://localhost:3000"})
			So(rec.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:3000")
		})
	})
}
