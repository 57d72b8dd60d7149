package server

import (
	"context"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// =============================================================================
// Responses
// =============================================================================

type errorResponse struct {
	Error     string  `json:"error"`
	LastError *string `json:"last_error,omitempty"`
	Message   string  `json:"message,omitempty"`
}

type timestampsResponse struct {
	Timestamps []int64 `json:"timestamps"`
	Count      int     `json:"count"`
}

type healthResponse struct {
	Status          string  `json:"status"`
	LastFetch       *string `json:"last_fetch"`
	LatestCacheFile *string `json:"latest_cache_file"`
	CacheFolder     string  `json:"cache_folder"`
	LastError       *string `json:"last_error"`
	FetchEnabled    bool    `json:"fetch_enabled"`
}

type statsResponse struct {
	Running       bool   `json:"running"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Entries       int    `json:"entries"`
	Writes        int64  `json:"writes"`
	WriteErrors   int64  `json:"write_errors"`
	FallbackClock int64  `json:"fallback_clock"`
	Cycles        int64  `json:"cycles"`
	Failures      int64  `json:"failures"`
	MigrationRuns int64  `json:"migration_runs"`
	FilesMoved    int64  `json:"files_moved"`
	FilesFixed    int64  `json:"files_fixed"`
	DirsRemoved   int64  `json:"dirs_removed"`
	LastPath      string `json:"last_path,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), errorResponse{Error: err.Error()})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.IndexFile)
}

// handleClusterStatus serves the newest entry. With an empty cache and
// fetching enabled it runs one fetch first.
func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()

	entry, ok := st.Latest()
	if !ok && s.svc.FetchEnabled() {
		// A client going away must not abort a cycle other callers share
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.svc.FetchNow(ctx); err != nil {
			logging.WithContext(r.Context()).Warn("on-demand fetch failed", "error", err)
		}
		entry, ok = st.Latest()
	}

	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "Data not available",
			LastError: optional(s.svc.Pipeline().Status().LastErrorString()),
			Message:   "Could not fetch or load cluster data. Please try again.",
		})
		return
	}

	s.serveEntry(w, r, entry)
}

// handleClusterStatusAt serves the entry nearest to the requested time.
func (s *Server) handleClusterStatusAt(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "timestamp")
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, errors.WithKind(errors.ErrMalformedTimestamp, nil, "timestamp %q", raw))
		return
	}

	entry, ok := s.svc.Store().At(ts)
	if !ok {
		writeError(w, errors.WithKind(errors.ErrNotFound, nil, "no snapshot near %d", ts))
		return
	}

	s.serveEntry(w, r, entry)
}

// handleTimestamps lists cached timestamps, all of them or those within
// [start, end]. A missing bound is open.
func (s *Server) handleTimestamps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start") == "" && q.Get("end") == "" {
		all := s.svc.Store().AllTimestamps()
		writeJSON(w, http.StatusOK, timestampsResponse{Timestamps: nonNil(all), Count: len(all)})
		return
	}

	start, err := queryInt(q.Get("start"), 0)
	if err != nil {
		writeError(w, errors.WithKind(errors.ErrMalformedTimestamp, nil, "start %q", q.Get("start")))
		return
	}
	end, err := queryInt(q.Get("end"), math.MaxInt64)
	if err != nil {
		writeError(w, errors.WithKind(errors.ErrMalformedTimestamp, nil, "end %q", q.Get("end")))
		return
	}

	window := s.svc.Store().InWindow(start, end)
	writeJSON(w, http.StatusOK, timestampsResponse{Timestamps: nonNil(window), Count: len(window)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	status := s.svc.Pipeline().Status()

	resp := healthResponse{
		Status:       "ok",
		CacheFolder:  st.Root(),
		LastError:    optional(status.LastErrorString()),
		FetchEnabled: s.svc.FetchEnabled(),
	}
	if abs, err := filepath.Abs(st.Root()); err == nil {
		resp.CacheFolder = abs
	}
	if !status.LastSuccess.IsZero() {
		resp.LastFetch = optional(status.LastSuccess.UTC().Format(time.RFC3339))
	}
	if entry, ok := st.Latest(); ok {
		resp.LatestCacheFile = optional(entry.Path)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Running:       stats.Running,
		UptimeSeconds: int64(stats.Uptime / time.Second),
		Entries:       len(s.svc.Store().AllTimestamps()),
		Writes:        stats.Store.Writes,
		WriteErrors:   stats.Store.WriteErrors,
		FallbackClock: stats.Store.FallbackClock,
		Cycles:        stats.Pipeline.Cycles,
		Failures:      stats.Pipeline.Failures,
		MigrationRuns: stats.Migrator.Runs,
		FilesMoved:    stats.Migrator.FilesMoved,
		FilesFixed:    stats.Migrator.FilesFixed,
		DirsRemoved:   stats.Migrator.DirsRemoved,
		LastPath:      stats.Pipeline.LastPath,
	})
}

// =============================================================================
// Entry Serving
// =============================================================================

// serveEntry writes one cache entry as JSON. Compressed entries go out
// untouched with Content-Encoding: gzip when the client accepts it.
func (s *Server) serveEntry(w http.ResponseWriter, r *http.Request, entry types.CacheEntry) {
	st := s.svc.Store()
	h := w.Header()
	h.Set("X-Snapshot-Timestamp", strconv.FormatInt(entry.Timestamp, 10))

	if entry.Compressed() {
		h.Add("Vary", "Accept-Encoding")
	}

	if entry.Compressed() && acceptsGzip(r) {
		f, err := st.Open(entry)
		if err != nil {
			writeError(w, err)
			return
		}
		defer f.Close()

		h.Set("Content-Type", "application/json")
		h.Set("Content-Encoding", "gzip")
		if info, err := f.Stat(); err == nil {
			h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			logging.WithContext(r.Context()).Debug("response copy failed", "path", entry.Path, "error", err)
		}
		return
	}

	// Plain entries are served as stored; compressed ones decoded here
	data, err := st.ReadDecoded(entry)
	if err != nil {
		logging.WithContext(r.Context()).Warn("cache entry unreadable", "path", entry.Path, "error", err)
		writeError(w, err)
		return
	}

	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// acceptsGzip reports whether Accept-Encoding lists gzip without q=0.
func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		fields := strings.Split(part, ";")
		if strings.TrimSpace(strings.ToLower(fields[0])) != "gzip" {
			continue
		}
		for _, p := range fields[1:] {
			if q := strings.TrimSpace(p); q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
				return false
			}
		}
		return true
	}
	return false
}

func queryInt(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func nonNil(ts []int64) []int64 {
	if ts == nil {
		return []int64{}
	}
	return ts
}
