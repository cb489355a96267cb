package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/amanullahtanweer/video-transcriber/internal/delivery"
	"github.com/amanullahtanweer/video-transcriber/internal/jobs"
	"github.com/amanullahtanweer/video-transcriber/internal/pipeline"
)

type convertRequest struct {
	VideoURL string `json:"video_url"`
	Email    string `json:"email"`
}

type response struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	StatusURL string `json:"status_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Status: "error", Message: msg})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be JSON")
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Video URL or email missing")
		return
	}
	if err := delivery.ValidateAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	ref := pipeline.RemoteURL(req.VideoURL)
	if err := ref.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Video URL must be a full http(s) link")
		return
	}

	s.accept(w, r, jobs.New("url"), ref, req.Email, nil)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Video file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Request must be multipart/form-data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email missing")
		return
	}
	if err := delivery.ValidateAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No video file uploaded")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No video file selected")
		return
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !slices.Contains(s.config.AllowedFormats, ext) {
		writeError(w, http.StatusBadRequest, "Invalid file type. Allowed: "+strings.Join(s.config.AllowedFormats, ", "))
		return
	}

	// The client's file name is never used on disk.
	path := filepath.Join(s.config.UploadDir, uuid.NewString()+"."+ext)
	if err := saveUpload(file, path); err != nil {
		s.deps.Logger.Error("failed to save upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not store the uploaded video")
		return
	}
	s.deps.Logger.Info("upload stored", "path", path, "bytes", header.Size)

	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.deps.Logger.Warn("failed to remove upload", "path", path, "error", err)
		}
	}
	s.accept(w, r, jobs.New("upload"), pipeline.LocalPath(path), email, cleanup)
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

// accept records job and starts its run. cleanup runs exactly once, even if
// the run cannot be started.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, job jobs.Job, ref pipeline.Reference, email string, cleanup func()) {
	if err := s.deps.Jobs.Put(r.Context(), job); err != nil {
		s.deps.Logger.Error("failed to record job", "error", err)
		if cleanup != nil {
			cleanup()
		}
		writeError(w, http.StatusInternalServerError, "Could not queue the request")
		return
	}
	if err := s.dispatch(job, ref, email, cleanup); err != nil {
		if cleanup != nil {
			cleanup()
		}
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	writeJSON(w, http.StatusAccepted, response{
		Status:    "accepted",
		Message:   "Your transcript is being prepared and will be emailed when ready.",
		JobID:     job.ID,
		StatusURL: "/jobs/" + job.ID,
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.deps.Logger.Error("failed to read job", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not read job status")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.deps.Counters.Format())
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "success", Message: "Backend is running"})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Video Transcriber API",
		"status":  "running",
		"endpoints": map[string]string{
			"/":               "API information (this page)",
			"/test":           "Check that the backend is running",
			"/convert":        "POST JSON {video_url, email}: transcribe a video link",
			"/convert-upload": "POST multipart {video, email}: transcribe an uploaded video",
			"/jobs/{id}":      "GET the status of a queued transcription",
			"/metrics":        "GET process counters",
		},
		"supported_formats": s.config.AllowedFormats,
	})
}
