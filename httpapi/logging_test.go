package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

func TestRouteOfExtractsTabAndWindow(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          requestRoute
	}{
		{
			pattern: "POST /api/tabs/{tab}/unload",
			path:    "/api/tabs/3.1/unload",
			want:    requestRoute{pattern: "POST /api/tabs/{tab}/unload", tab: schema.NodeID{Index: 3, Gen: 1}},
		},
		{
			pattern: "DELETE /api/windows/{window}",
			path:    "/api/windows/w2",
			want:    requestRoute{pattern: "DELETE /api/windows/{window}", window: "w2"},
		},
		{
			pattern: "GET /api/tabs/{tab}",
			path:    "/api/tabs/bogus",
			want:    requestRoute{pattern: "GET /api/tabs/{tab}"},
		},
		{pattern: "", path: "/nowhere", want: requestRoute{}},
	}
	for _, tc := range cases {
		if got := routeOf(tc.pattern, tc.path); got != tc.want {
			t.Fatalf("routeOf(%q, %q) = %+v, want %+v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestRequestLoggingAnnotatesRoute(t *testing.T) {
	capture := &bytes.Buffer{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:             pslog.ModeStructured,
		NoColor:          true,
		DisableTimestamp: true,
		MinLevel:         pslog.DebugLevel,
	})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tabs/{tab}/unload", func(w http.ResponseWriter, r *http.Request) {
		logx.WithWindowTab(r.Context(), "", schema.NodeID{Index: 3, Gen: 1}).Info("tab handler ran")
		w.WriteHeader(http.StatusAccepted)
	})
	handler := withRequestLogging(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/tabs/3.1/unload", nil)
	req = req.WithContext(pslog.ContextWithLogger(context.Background(), logger))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	var handlerLine, requestLine string
	for _, line := range strings.Split(capture.String(), "\n") {
		switch {
		case strings.Contains(line, "tab handler ran"):
			handlerLine = line
		case strings.Contains(line, "http request") && !strings.Contains(line, "details"):
			requestLine = line
		}
	}
	if !strings.Contains(requestLine, `"tab":"3.1"`) || !strings.Contains(requestLine, "/api/tabs/{tab}/unload") {
		t.Fatalf("expected tab and route on request line, got %q", requestLine)
	}
	if got := strings.Count(handlerLine, `"tab":`); got != 1 {
		t.Fatalf("expected tab logged once by handler, got %d in %q", got, handlerLine)
	}
}
