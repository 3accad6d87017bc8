// Package httpapi exposes the crawl engine over HTTP: POST /api/parse
// runs one crawl and returns its CrawlResult, GET /api/health reports
// liveness. Grounded on a plain net/http.ServeMux server rather than a
// router framework, matching the rest of the retrieved corpus's
// smaller HTTP services.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bk-ru/parser/internal/config"
	"github.com/bk-ru/parser/internal/engine"
	"github.com/bk-ru/parser/internal/obslog"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 5 * time.Minute
	idleTimeout  = 60 * time.Second
)

// parseRequest is the POST /api/parse body: a start URL plus optional
// config sources, layered the same way the CLI layers them.
type parseRequest struct {
	URL       string             `json:"url"`
	ConfigFile string            `json:"config,omitempty"`
	Overrides *config.Overrides  `json:"overrides,omitempty"`
}

// NewServer builds the *http.Server exposing the engine's two routes.
// rec is shared across every request the server handles.
func NewServer(addr string, rec *obslog.Recorder) *http.Server {
	if rec == nil {
		rec = obslog.Noop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", handleHealth)
	mux.HandleFunc("/api/parse", handleParse(rec))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleParse(rec *obslog.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}
		if req.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}

		cfg, err := config.Load(req.ConfigFile, req.Overrides)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result, err := engine.ParseSite(req.URL, cfg, rec)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
