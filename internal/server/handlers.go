package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"headlines/internal/core"
	"headlines/internal/dataset"
	"headlines/internal/pipeline"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]string `json:"checks"`
	Collections map[string]int    `json:"collections,omitempty"` // Documents per index collection
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Question string `json:"question"`
}

// ProcessRequest is the optional body of POST /api/process
type ProcessRequest struct {
	NewsCSVPath       string `json:"news_csv_path"`
	HighlightsCSVPath string `json:"highlights_csv_path"`
}

// ProcessResponse summarises a pipeline run
type ProcessResponse struct {
	Message             string         `json:"message"`
	RunID               string         `json:"run_id"`
	ArticlesProcessed   int            `json:"articles_processed"`
	HighlightsGenerated int            `json:"highlights_generated"`
	Categories          map[string]int `json:"categories"`
	Duration            string         `json:"duration"`
}

// ArticleView is one processed article or highlight as served by the API
type ArticleView struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	Category       string `json:"category"`
	Cluster        int    `json:"cluster"`
	ClusterSize    int    `json:"cluster_size"`
	IsPriority     bool   `json:"is_priority"`
	HighlightScore int    `json:"highlight_score"`
}

// HighlightsResponse is returned by GET /api/highlights
type HighlightsResponse struct {
	Highlights []ArticleView `json:"highlights"`
	Count      int           `json:"count"`
}

// ArticlesResponse is one page of GET /api/articles
type ArticlesResponse struct {
	Articles []ArticleView `json:"articles"`
	Total    int           `json:"total"` // Matching articles across all pages
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

var serverStartTime = time.Now()

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK

	var collections map[string]int

	if s.deps.Index != nil {
		infos, err := s.deps.Index.Collections(r.Context())
		if err != nil {
			s.log.Error("Index health check failed", "error", err)
			checks["index"] = "error"
			status = http.StatusServiceUnavailable
		} else {
			checks["index"] = "ok"
			collections = make(map[string]int, len(infos))
			for _, info := range infos {
				collections[info.Name] = info.Documents
			}
		}
	}

	resp := HealthResponse{
		Status:      "ok",
		Uptime:      time.Since(serverStartTime).Round(time.Second).String(),
		Checks:      checks,
		Collections: collections,
	}
	if status != http.StatusOK {
		resp.Status = "unhealthy"
	}
	s.respondJSON(w, status, resp)
}

// handleChat handles POST /api/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, "Question is required")
		return
	}

	answer, err := s.deps.Answerer.Answer(r.Context(), req.Question)
	if err != nil {
		s.log.Error("Failed to answer question", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to answer question: "+err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, answer)
}

// handleProcess handles POST /api/process
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !s.processing.TryLock() {
		s.respondError(w, http.StatusConflict, "Processing is already running")
		return
	}
	defer s.processing.Unlock()

	result, err := s.deps.Processor.Process(r.Context(), pipeline.Options{
		NewsCSV:       req.NewsCSVPath,
		HighlightsCSV: req.HighlightsCSVPath,
	})
	if err != nil {
		s.log.Error("Pipeline run failed", "error", err)
		var inputErr *core.InputDataError
		if errors.As(err, &inputErr) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Processing failed: "+err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, ProcessResponse{
		Message:             "News processed successfully",
		RunID:               result.RunID,
		ArticlesProcessed:   len(result.Articles),
		HighlightsGenerated: len(result.Highlights),
		Categories:          result.CategoryCounts,
		Duration:            result.Stats.ProcessingTime.String(),
	})
}

// handleHighlights handles GET /api/highlights?category=
func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	category := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category")))

	ds, err := dataset.LoadProcessed(s.deps.HighlightsCSV)
	if err != nil {
		if _, statErr := os.Stat(s.deps.HighlightsCSV); errors.Is(statErr, os.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "Highlights not found. Run processing first.")
			return
		}
		s.log.Error("Failed to load highlights", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load highlights")
		return
	}

	views := make([]ArticleView, 0, len(ds.Articles))
	for _, a := range ds.Articles {
		if category != "" && a.PredictedCategory != category {
			continue
		}
		views = append(views, viewOf(a))
	}

	s.respondJSON(w, http.StatusOK, HighlightsResponse{Highlights: views, Count: len(views)})
}

// handleArticles handles GET /api/articles?category=&q=&page=&pageSize=
// over the processed dataset
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := strings.ToLower(strings.TrimSpace(query.Get("category")))
	search := strings.ToLower(strings.TrimSpace(query.Get("q")))

	page, err := positiveParam(query.Get("page"), 1)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := positiveParam(query.Get("pageSize"), defaultPageSize)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "pageSize must be a positive integer")
		return
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	ds, err := dataset.LoadProcessed(s.deps.ClassifiedCSV)
	if err != nil {
		if _, statErr := os.Stat(s.deps.ClassifiedCSV); errors.Is(statErr, os.ErrNotExist) {
			s.respondError(w, http.StatusNotFound, "Processed articles not found. Run processing first.")
			return
		}
		s.log.Error("Failed to load processed articles", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load processed articles")
		return
	}

	var matches []core.Article
	for _, a := range ds.Articles {
		if category != "" && a.PredictedCategory != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Summary), search) {
			continue
		}
		matches = append(matches, a)
	}

	views := make([]ArticleView, 0, pageSize)
	if start := (page - 1) * pageSize; start < len(matches) {
		end := min(start+pageSize, len(matches))
		for _, a := range matches[start:end] {
			views = append(views, viewOf(a))
		}
	}

	s.respondJSON(w, http.StatusOK, ArticlesResponse{
		Articles: views,
		Total:    len(matches),
		Page:     page,
		PageSize: pageSize,
	})
}

// positiveParam parses an optional positive integer query parameter
func positiveParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return n, nil
}

func viewOf(a core.Article) ArticleView {
	return ArticleView{
		ID:             a.ID,
		Title:          a.Title,
		Summary:        a.Summary,
		Category:       a.PredictedCategory,
		Cluster:        a.Cluster,
		ClusterSize:    a.ClusterSize,
		IsPriority:     a.IsPriority,
		HighlightScore: a.HighlightScore,
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
