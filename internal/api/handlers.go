package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/blagoySimandov/certmapper/internal/auth"
	"github.com/blagoySimandov/certmapper/internal/logger"
	"github.com/blagoySimandov/certmapper/internal/mapper"
	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/blagoySimandov/certmapper/internal/spreadsheet"
	"github.com/blagoySimandov/certmapper/internal/state"
)

const (
	uploadFormField       = "file"
	defaultMaxUploadBytes = 32 << 20
	defaultResultsLimit   = 100
)

type MappingHandler struct {
	mapper         mapper.IMapper
	maxUploadBytes int64
}

func NewMappingHandler(m mapper.IMapper) *MappingHandler {
	return &MappingHandler{
		mapper:         m,
		maxUploadBytes: defaultMaxUploadBytes,
	}
}

func (h *MappingHandler) UploadWorkbook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		http.Error(w, fmt.Sprintf("missing %q form file: %v", uploadFormField, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, err := h.mapper.Upload(r.Context(), auth.UserID(r.Context()), header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.UploadResponse{
		JobID:    job.JobID,
		Headers:  job.Headers,
		RowCount: job.TotalRows,
	})
}

func (h *MappingHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobs, err := h.mapper.Jobs(r.Context(), auth.UserID(r.Context()), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries := make([]*models.JobSummary, len(jobs))
	for i, job := range jobs {
		summaries[i] = models.ToJobSummary(job)
	}
	writeJSON(w, http.StatusOK, models.JobListResponse{
		Jobs:       summaries,
		TotalCount: len(summaries),
	})
}

func (h *MappingHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]

	var req models.StartJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.mapper.Start(r.Context(), jobID, req.ToJobConfig()); err != nil {
		writeError(w, err)
		return
	}

	logger.Log.Info("job started", "job_id", jobID, "user_id", auth.UserID(r.Context()), "columns", req.Columns)
	writeJSON(w, http.StatusAccepted, models.StartJobResponse{
		JobID:   jobID,
		Message: "Mapping started",
	})
}

func (h *MappingHandler) GetJobProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.mapper.Progress(r.Context(), mux.Vars(r)["jobID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *MappingHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.mapper.Cancel(r.Context(), mux.Vars(r)["jobID"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Job cancelled"})
}

func (h *MappingHandler) GetJobResults(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if limit == 0 {
		limit = defaultResultsLimit
	}

	results, err := h.mapper.Results(r.Context(), mux.Vars(r)["jobID"], offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *MappingHandler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	reader, name, err := h.mapper.Download(r.Context(), mux.Vars(r)["jobID"])
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, reader); err != nil {
		logger.Log.Error("failed to stream download", "error", err, "file_name", name)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pagination(r *http.Request) (offset, limit int, err error) {
	if s := r.URL.Query().Get("start"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid start %q", s)
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", s)
		}
	}
	return offset, limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrJobNotFound), errors.Is(err, mapper.ErrNoOutput), errors.Is(err, fs.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, mapper.ErrJobNotPending), errors.Is(err, mapper.ErrJobNotRunning):
		status = http.StatusConflict
	case errors.Is(err, mapper.ErrInvalidConfig),
		errors.Is(err, spreadsheet.ErrUnsupportedFormat),
		errors.Is(err, spreadsheet.ErrEmptySheet):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
