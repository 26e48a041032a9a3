package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ankigen/internal/anki"
	"ankigen/internal/models"
	"ankigen/internal/services"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// Exporter inserts flashcards into the local deck store.
type Exporter interface {
	ExportCards(ctx context.Context, deck string, cards []models.FlashCard) ([]anki.ExportResult, error)
}

// TextExtractor pulls the text layer out of an uploaded document.
type TextExtractor interface {
	ExtractText(path string) (string, error)
}

type Server struct {
	mux       *http.ServeMux
	extractor *services.ExtractorService
	pdf       TextExtractor
	exporter  Exporter
	jobs      *JobManager
	logger    *slog.Logger

	defaultDeck string
	uploadDir   string
}

func NewServer(
	extractor *services.ExtractorService,
	pdf TextExtractor,
	exporter Exporter,
	logger *slog.Logger,
	defaultDeck string,
	uploadDir string,
) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		extractor:   extractor,
		pdf:         pdf,
		exporter:    exporter,
		jobs:        NewJobManager(),
		logger:      logger,
		defaultDeck: defaultDeck,
		uploadDir:   uploadDir,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/documents", s.handleUploadDocuments)
	s.mux.HandleFunc("/api/documents/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/documents/jobs/", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Text     string `json:"text"`
	Format   string `json:"format"`
	Language string `json:"language"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	format, _ := models.ParseCardType(req.Format)
	result, err := s.extractor.ExtractFlashcards(r.Context(), services.ExtractRequest{
		Text:     req.Text,
		Format:   format,
		Language: req.Language,
	})
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type exportRequest struct {
	Deck  string             `json:"deck"`
	Cards []models.FlashCard `json:"cards"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	deck := strings.TrimSpace(req.Deck)
	if deck == "" {
		deck = s.defaultDeck
	}
	cards := make([]models.FlashCard, 0, len(req.Cards))
	for _, card := range req.Cards {
		if card.Valid() {
			cards = append(cards, card)
		}
	}
	if len(cards) == 0 {
		writeError(w, http.StatusBadRequest, "no valid cards to export")
		return
	}

	results, err := s.exporter.ExportCards(r.Context(), deck, cards)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "export failed", "deck", deck, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("deck store unreachable: %v", err))
		return
	}

	added := 0
	for _, res := range results {
		if res.Status == "added" {
			added++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deck":    deck,
		"added":   added,
		"results": results,
	})
}

func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	files, format, language, ok := s.parseUploadForm(w, r)
	if !ok {
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	results := make([]GenerationResult, 0, len(files))
	for _, file := range files {
		upload, err := s.spoolUpload(file)
		if err != nil {
			results = append(results, GenerationResult{
				Name:    file.Filename,
				Status:  FileStatusError,
				Message: err.Error(),
			})
			continue
		}
		result, err := s.processDocument(r.Context(), upload, format, language, nil)
		os.Remove(upload.path)
		if err != nil {
			if errors.Is(err, services.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "upstream rejected credential")
				return
			}
			result.Status = FileStatusError
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/documents/jobs" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	files, format, language, ok := s.parseUploadForm(w, r)
	if !ok {
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	// The form's own spool files die with the request, so every part is
	// copied out before the handler returns and the job runs on the copies.
	uploads := make([]spooledFile, 0, len(files))
	names := make([]string, 0, len(files))
	for _, file := range files {
		upload, err := s.spoolUpload(file)
		if err != nil {
			for _, u := range uploads {
				os.Remove(u.path)
			}
			s.logger.ErrorContext(r.Context(), "spool upload failed",
				"file", file.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "could not store upload")
			return
		}
		uploads = append(uploads, upload)
		names = append(names, upload.name)
	}

	jobID, snapshot := s.jobs.CreateJob(names)

	go s.runUploadJob(context.Background(), jobID, format, language, uploads)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/jobs/"), "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, models.CardType, string, bool) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, "", "", false
	}

	format := models.CardTypeBasic
	if v := r.FormValue("format"); v != "" {
		parsed, ok := models.ParseCardType(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "format must be 'basic', 'cloze' or 'image'")
			return nil, "", "", false
		}
		format = parsed
	}

	form := r.MultipartForm
	if form == nil || len(form.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return nil, "", "", false
	}

	return form.File["files"], format, r.FormValue("language"), true
}

func (s *Server) runUploadJob(
	ctx context.Context,
	jobID string,
	format models.CardType,
	language string,
	uploads []spooledFile,
) {
	defer func() {
		for _, upload := range uploads {
			_ = os.Remove(upload.path)
		}
	}()

	s.jobs.MarkProcessing(jobID)
	for idx, upload := range uploads {
		s.jobs.MarkFileStarted(jobID, idx)
		progress := func(step, message string, current, total int) {
			s.jobs.UpdateFileProgress(jobID, idx, step, message, current, total)
		}
		result, err := s.processDocument(ctx, upload, format, language, progress)
		if err != nil {
			s.jobs.MarkFileError(jobID, idx, err.Error(), result)
			continue
		}
		s.jobs.MarkFileComplete(jobID, idx, result)
	}
	s.jobs.MarkCompleted(jobID)
}

// spooledFile is an upload copied out of the request's multipart form. The
// copy outlives the request, so background jobs can read it, and the PDF
// reader gets the path it wants.
type spooledFile struct {
	name string
	path string
}

func (s *Server) spoolUpload(file *multipart.FileHeader) (spooledFile, error) {
	src, err := file.Open()
	if err != nil {
		return spooledFile{}, fmt.Errorf("open upload %s: %w", file.Filename, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.uploadDir, "upload-*"+filepath.Ext(file.Filename))
	if err != nil {
		return spooledFile{}, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return spooledFile{}, fmt.Errorf("spool upload %s: %w", file.Filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return spooledFile{}, fmt.Errorf("spool upload %s: %w", file.Filename, err)
	}
	return spooledFile{name: file.Filename, path: tmp.Name()}, nil
}

// processDocument extracts a spooled document's text layer and runs the
// generation pipeline over it. Removing the spool file is the caller's job.
func (s *Server) processDocument(
	ctx context.Context,
	upload spooledFile,
	format models.CardType,
	language string,
	progress services.ProgressCallback,
) (GenerationResult, error) {
	result := GenerationResult{Name: upload.name, Status: FileStatusError}

	if progress != nil {
		progress("extract", "Extracting text layer", 5, 100)
	}
	text, err := s.pdf.ExtractText(upload.path)
	if err != nil {
		result.Message = err.Error()
		return result, fmt.Errorf("extract text from %s: %w", upload.name, err)
	}

	extraction, err := s.extractor.ExtractFlashcardsWithProgress(ctx, services.ExtractRequest{
		Text:     text,
		Format:   format,
		Language: language,
	}, progress)
	if err != nil {
		result.Message = err.Error()
		return result, fmt.Errorf("generate flashcards for %s: %w", upload.name, err)
	}

	result.Status = FileStatusComplete
	result.CardCount = len(extraction.Cards)
	result.Payload = &extraction
	return result, nil
}

func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNoText):
		writeError(w, http.StatusBadRequest, "no text provided")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "upstream rejected credential; check your API key")
	default:
		s.logger.ErrorContext(r.Context(), "generation run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
