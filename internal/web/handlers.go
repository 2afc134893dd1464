package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// MaxRunsLimit caps the limit query parameter of the runs listing.
const MaxRunsLimit = 200

// JobResponse describes one registered job.
type JobResponse struct {
	core.JobInfo
	Sheet     string   `json:"sheet"`
	HeaderRow int      `json:"headerRow"`
	StartRow  int      `json:"startRow"`
	KeyFields []string `json:"keyFields"`
	Fields    []string `json:"fields"`
	Source    string   `json:"source"`
}

// HeadersResponse is the resolved header layout of a job's sheet.
type HeadersResponse struct {
	Job     string                `json:"job"`
	Sheet   string                `json:"sheet"`
	Columns map[string]ColumnInfo `json:"columns"`
	Missing []string              `json:"missing"`
}

// ColumnInfo locates one logical key in the sheet.
type ColumnInfo struct {
	Title  string `json:"title"`
	Letter string `json:"letter"`
	Index  int    `json:"index"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"limiter": s.service.Limiter().Status(),
		"active":  s.service.ActiveRuns(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if group := r.URL.Query().Get("group"); group != "" {
		jobs := s.service.ListJobsByGroup()[group]
		if jobs == nil {
			jobs = []core.JobInfo{}
		}
		writeJSON(w, http.StatusOK, jobs)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	def, err := core.Lookup(chi.URLParam(r, "jobKey"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(def))
}

func (s *Server) handleJobHeaders(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "jobKey")
	hm, err := s.service.Headers(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	resp := HeadersResponse{
		Job:     key,
		Sheet:   hm.Sheet,
		Columns: make(map[string]ColumnInfo),
		Missing: hm.Missing,
	}
	for _, k := range hm.Keys() {
		info, _ := hm.Get(k)
		resp.Columns[k] = ColumnInfo{Title: info.Title, Letter: info.Letter, Index: info.Index}
	}
	if resp.Missing == nil {
		resp.Missing = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "jobKey")
	ctx := withHTTPTrigger(r.Context())

	if r.URL.Query().Get("wait") == "true" {
		report, err := s.service.RunJob(ctx, key)
		if report == nil {
			s.respondError(w, r, err, 0)
			return
		}
		// a failed run still has a report worth returning
		writeJSON(w, http.StatusOK, report)
		return
	}

	runID, err := s.service.StartJob(ctx, key)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "job": key})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "limit must be a positive integer",
				Message: "limit must be a positive integer",
				Code:    "REQ001",
			})
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := s.service.RecentRuns(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.SyncReport{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleActiveRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ActiveRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID, "status": "cancelling"})
}

func toJobResponse(def core.JobDefinition) JobResponse {
	resp := JobResponse{
		JobInfo:   def.Info,
		Sheet:     def.Sheet,
		HeaderRow: def.HeaderRow,
		StartRow:  def.StartRow,
		KeyFields: def.KeyNames(),
		Fields:    make([]string, len(def.Fields)),
		Source:    def.Source.Path,
	}
	for i, f := range def.Fields {
		resp.Fields[i] = f.Key
	}
	return resp
}
