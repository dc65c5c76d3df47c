package resource

import (
	"net/http"
	"strconv"

	"github.com/wizardry/host/internal/clog"
)

// Handler exposes a Server over HTTP.
//
// Found files are returned with status 200 and their content type. Missing
// files are 404. Sandbox escapes are also 404 unless strict is set, in
// which case they are 403.
func Handler(s *Server, strict bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		resp := s.Serve(r.URL.Path)
		clog.Debug("resource: %s %q -> %s", r.Method, r.URL.Path, resp.Status)

		switch resp.Status {
		case StatusOK:
			h := w.Header()
			h.Set("Content-Type", resp.ContentType)
			h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				_, _ = w.Write(resp.Body)
			}
		case StatusForbidden:
			clog.Warn("resource: blocked path outside application root: %q", r.URL.Path)
			if strict {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}
