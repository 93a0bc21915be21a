package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"memoboard/api/internal/canvas"
	"memoboard/api/internal/metrics"
	"memoboard/api/internal/search"
	"memoboard/api/internal/upload"
)

// multipartSlack covers boundaries and part headers on top of the file ceiling.
const multipartSlack = 64 << 10

type ServerOptions struct {
	CORSOrigins []string
	// UploadDir is served under /uploads/ when set.
	UploadDir string
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	uploadDir   string
	metrics     *metrics.Collector
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

func NewHTTPServer(service *Service, opts ServerOptions) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &HTTPServer{
		service:     service,
		corsOrigins: origins,
		uploadDir:   opts.UploadDir,
		metrics:     opts.Metrics,
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger, s.metrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/ws", s.handleWebsocket)
	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.uploadDir != "" {
		router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Get("/stats", s.handleStats)
		r.Get("/search", s.handleSearch)
		r.Post("/upload", s.handleUpload)

		r.Get("/boards", s.handleBoards)
		r.Get("/boards/{boardID}", s.handleBoard)
		r.Get("/boards/{boardID}/memos", s.handleBoardMemos)

		r.Get("/memos", s.handleMemos)
		r.Get("/memos/{memoID}", s.handleMemo)
		r.Get("/memos/{memoID}/likes", s.handleMemoLikes)
		r.Get("/memos/{memoID}/comments", s.handleMemoComments)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return router
}

// checkOrigin applies the CORS allow-list to websocket upgrades. Requests
// without an Origin header come from non-browser clients and pass.
func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"persistence": map[string]any{"status": "ok"},
		"search":      map[string]any{"status": "ok", "backend": s.service.SearchBackend()},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["persistence"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.service.Boards(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *HTTPServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.service.Board(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *HTTPServer) handleBoardMemos(w http.ResponseWriter, r *http.Request) {
	memos, err := s.service.BoardMemos(r.Context(), chi.URLParam(r, "boardID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memos)
}

func (s *HTTPServer) handleMemos(w http.ResponseWriter, r *http.Request) {
	memos, err := s.service.Memos(r.Context(), strings.TrimSpace(r.URL.Query().Get("boardId")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memos)
}

func (s *HTTPServer) handleMemo(w http.ResponseWriter, r *http.Request) {
	memo, err := s.service.Memo(r.Context(), chi.URLParam(r, "memoID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

func (s *HTTPServer) handleMemoLikes(w http.ResponseWriter, r *http.Request) {
	likes, err := s.service.Likes(r.Context(), chi.URLParam(r, "memoID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likes)
}

func (s *HTTPServer) handleMemoComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.service.Comments(r.Context(), chi.URLParam(r, "memoID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "q is required", nil)
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit > 100 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:    text,
		BoardID: strings.TrimSpace(query.Get("boardId")),
		Limit:   limit,
	}))
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.UploadLimit()+multipartSlack)

	part, err := imagePart(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer part.Close()

	url, err := s.service.Upload(r.Context(), part)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

// imagePart streams the multipart body until it reaches the "image" field.
func imagePart(r *http.Request) (io.ReadCloser, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Expected multipart/form-data", nil)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Malformed multipart body", nil)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domainError(http.StatusBadRequest, "INVALID_BODY", "No image provided", nil)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "image" {
			return part, nil
		}
		part.Close()
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestID", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var maxBytesErr *http.MaxBytesError
	if errors.Is(err, upload.ErrTooLarge) || errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large", nil
	}
	if errors.Is(err, upload.ErrUnsupportedType) {
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Only image uploads are allowed", nil
	}
	if errors.Is(err, upload.ErrEmpty) {
		return http.StatusBadRequest, "INVALID_BODY", "Empty file", nil
	}
	if errors.Is(err, canvas.ErrHubClosed) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "UNAVAILABLE", "Service unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
