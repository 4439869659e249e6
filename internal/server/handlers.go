package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/pkg/downloader"
	"github.com/3leaps/mediagrab/pkg/jobstore"
	"github.com/3leaps/mediagrab/pkg/orchestrator"
)

// requesterIDHeader carries the authenticated requester identity set by
// a fronting proxy. Absent for anonymous requests.
const requesterIDHeader = "X-Requester-ID"

type createDownloadRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Quality  string `json:"quality"`
}

type jobView struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	URL         string `json:"url"`
	Quality     string `json:"quality"`
	State       string `json:"state"`
	Progress    int    `json:"progress"`
	ErrorDetail string `json:"error_detail,omitempty"`

	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`

	FileSize    int64  `json:"file_size,omitempty"`
	Format      string `json:"format,omitempty"`
	AccessCount int64  `json:"access_count"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(j *downloader.Job) jobView {
	return jobView{
		ID:              j.ID,
		Platform:        j.Platform.String(),
		URL:             j.SourceURL,
		Quality:         j.Quality.String(),
		State:           j.State.String(),
		Progress:        j.Progress,
		ErrorDetail:     j.ErrorDetail,
		Title:           j.Title,
		Description:     j.Description,
		DurationSeconds: j.DurationSeconds,
		ThumbnailURL:    j.ThumbnailURL,
		FileSize:        j.FileSize,
		Format:          j.Format,
		AccessCount:     j.AccessCount,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		CompletedAt:     j.CompletedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	var req createDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	job, err := s.deps.Orchestrator.Submit(r.Context(), orchestrator.Request{
		Platform:      downloader.Platform(req.Platform),
		SourceURL:     req.URL,
		Quality:       downloader.Quality(req.Quality),
		RequesterID:   r.Header.Get(requesterIDHeader),
		RequesterAddr: clientAddr(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(job))
}

// handleListDownloads lists the caller's own jobs. Listing requires a
// requester identity: without one the filter would be empty and the
// response would expose every job, owned ones included. Anonymous
// callers can still fetch individual jobs by ID.
func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	requester := r.Header.Get(requesterIDHeader)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "listing requires a requester identity")
		return
	}

	filter := jobstore.ListFilter{
		RequesterID: requester,
		State:       downloader.State(r.URL.Query().Get("state")),
		Limit:       100,
	}

	jobs, err := s.deps.Store.ListJobs(r.Context(), filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, viewOf(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": views})
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadAuthorizedJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(job))
}

func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadAuthorizedJob(w, r)
	if !ok {
		return
	}
	if err := s.deps.Orchestrator.Delete(r.Context(), job.ID); err != nil {
		s.logger.Error("delete job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadAuthorizedJob(w, r)
	if !ok {
		return
	}
	if err := s.deps.Orchestrator.Cancel(job.ID); err != nil {
		writeError(w, http.StatusConflict, "NOT_ACTIVE", "job is not currently downloading")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleDownloadFile streams a completed artifact. Each successful
// retrieval increments the job's access counter and appends a
// retrieval record.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadAuthorizedJob(w, r)
	if !ok {
		return
	}
	if job.State != downloader.StateCompleted || !job.HasArtifact() {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no artifact available for this job")
		return
	}

	body, size, err := s.deps.Artifacts.Open(r.Context(), job.ArtifactKey)
	if err != nil {
		s.logger.Error("open artifact failed",
			zap.String("job_id", job.ID),
			zap.String("artifact_key", job.ArtifactKey),
			zap.Error(err))
		writeError(w, http.StatusNotFound, "NOT_FOUND", "artifact unavailable")
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", contentTypeFor(job.Format))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(job.ArtifactKey)))
	if _, err := io.Copy(w, body); err != nil {
		// The stream was aborted mid-body; the retrieval never happened
		// from the caller's point of view, so it is not counted.
		s.logger.Warn("artifact stream aborted", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if err := s.deps.Store.RecordRetrieval(r.Context(), job.ID,
		r.Header.Get(requesterIDHeader), clientAddr(r), time.Now().UTC()); err != nil {
		s.logger.Warn("record retrieval failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

type validateURLRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type validateURLResponse struct {
	Valid      bool   `json:"valid"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// handleValidateURL probes whether a URL matches a platform's
// recognized patterns without creating a job. Works for inactive
// platforms too; only unknown platforms are rejected.
func (s *Server) handleValidateURL(w http.ResponseWriter, r *http.Request) {
	var req validateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	strat, ok := s.deps.Registry.Strategy(downloader.Platform(req.Platform))
	if !ok {
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_PLATFORM",
			fmt.Sprintf("unsupported platform %q", req.Platform))
		return
	}

	id, err := strat.ResolveID(req.URL)
	if err != nil {
		writeJSON(w, http.StatusOK, validateURLResponse{
			Valid:  false,
			Reason: "URL does not match any recognized pattern",
		})
		return
	}
	writeJSON(w, http.StatusOK, validateURLResponse{Valid: true, Identifier: id})
}

type platformView struct {
	Platform         string   `json:"platform"`
	Active           bool     `json:"active"`
	Formats          []string `json:"formats,omitempty"`
	MaxFileSizeBytes int64    `json:"max_file_size_bytes,omitempty"`
	RateLimitPerHour int      `json:"rate_limit_per_hour,omitempty"`
}

// handleListPlatforms returns the platforms that have a registered
// strategy, with their activation state.
func (s *Server) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	var out []platformView
	for _, p := range s.deps.Registry.Platforms() {
		view := platformView{Platform: p.String()}
		cfg, err := s.deps.Store.GetPlatformConfig(r.Context(), p)
		if err == nil {
			view.Active = cfg.Active
			view.Formats = cfg.Formats
			view.MaxFileSizeBytes = cfg.MaxFileSizeBytes
			view.RateLimitPerHour = cfg.RateLimitPerHour
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

func (s *Server) handlePlatformConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.Store.ListPlatformConfigs(r.Context())
	if err != nil {
		s.logger.Error("list platform configs failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

func (s *Server) handlePlatformConfig(w http.ResponseWriter, r *http.Request) {
	p := downloader.Platform(chi.URLParam(r, "platform"))
	cfg, err := s.deps.Store.GetPlatformConfig(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type downloadCompleteRequest struct {
	JobID       string `json:"job_id"`
	State       string `json:"state"`
	ErrorDetail string `json:"error_detail"`
}

// handleDownloadComplete is the completion callback for transfers that
// ran outside the in-process worker pool.
func (s *Server) handleDownloadComplete(w http.ResponseWriter, r *http.Request) {
	var req downloadCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	state := downloader.State(req.State)
	if !state.Terminal() {
		writeError(w, http.StatusBadRequest, "INVALID_STATE",
			fmt.Sprintf("state %q is not terminal", req.State))
		return
	}

	if err := s.deps.Orchestrator.Finalize(r.Context(), req.JobID, state, req.ErrorDetail); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

// loadAuthorizedJob fetches the job from the path ID and enforces
// ownership: a job created with a requester identity is only visible to
// that identity. Anonymous jobs are visible to anyone holding the ID.
func (s *Server) loadAuthorizedJob(w http.ResponseWriter, r *http.Request) (*downloader.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if job.RequesterID != "" && job.RequesterID != r.Header.Get(requesterIDHeader) {
		writeDomainError(w, &downloader.Error{
			Op: "Authorize", JobID: id, Err: downloader.ErrPermissionDenied,
		})
		return nil, false
	}
	return job, true
}

// clientAddr returns the request origin address without the port.
// middleware.RealIP has already substituted the first X-Forwarded-For
// hop when present.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func contentTypeFor(format string) string {
	switch format {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
