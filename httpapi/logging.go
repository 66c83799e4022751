package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

type responseRecorder struct {
	status int
	bytes  int64
	writer http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.writer.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.writer.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.writer.(http.Flusher); ok {
		f.Flush()
	}
}

// withRequestLogging logs one line per request. The logger handed to the
// handler already carries the tab and window the route names, so handler
// logs do not repeat them.
func withRequestLogging(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		_, pattern := mux.Handler(r)
		route := routeOf(pattern, r.URL.Path)
		logger := logx.WithWindowTab(r.Context(), route.window, route.tab).With("remote", clientIP(r))
		if route.pattern != "" {
			logger = logger.With("route", route.pattern)
		}
		ctx := logx.ContextWithWindowTabLogger(r.Context(), logger, route.window, route.tab)
		rec := &responseRecorder{writer: w}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}
		line := logger.Info
		if status >= http.StatusInternalServerError {
			line = logger.Warn
		}
		line("http request", "method", r.Method, "path", path, "status", status, "bytes", rec.bytes, "duration_ms", time.Since(start).Milliseconds())
		logger.Debug("http request details", "ua", r.UserAgent())
	})
}

type requestRoute struct {
	pattern string
	window  schema.WindowID
	tab     schema.NodeID
}

// routeOf matches the {window} and {tab} wildcards of pattern against path.
// A malformed tab is left out; the handler reports it.
func routeOf(pattern, path string) requestRoute {
	if pattern == "" {
		return requestRoute{}
	}
	route := requestRoute{pattern: pattern}
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		pattern = rest
	}
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range want {
		if i >= len(got) || !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		switch strings.TrimSuffix(strings.Trim(seg, "{}"), "...") {
		case "window":
			route.window = schema.WindowID(got[i])
		case "tab":
			if id, err := schema.ParseNodeID(got[i]); err == nil {
				route.tab = id
			}
		}
	}
	return route
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return r.RemoteAddr
}
