package responses

import (
	"net/http"
	"path"
	"strconv"
	"strings"
)

// Handler serves stored entries under [URLPrefix], e.g.
// GET /responses/<id>.wav. Unknown, expired or misnamed files answer 404.
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file := strings.TrimPrefix(r.URL.Path, URLPrefix)
		if file == r.URL.Path || file == "" || strings.Contains(file, "/") {
			http.NotFound(w, r)
			return
		}
		entry, err := s.Get(strings.TrimSuffix(file, path.Ext(file)))
		if err != nil || entry.Filename() != file {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", entry.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
		w.Header().Set("Cache-Control", "private, max-age=600")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(entry.Data)
		}
	})
}
