// Package server exposes embedding, retrieval, chat and tools over HTTP and websocket.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/pkg/embedding"
	"github.com/xhad/solar/pkg/llm"
	"github.com/xhad/solar/pkg/tools"
)

type EmbeddingService interface {
	PassageEmbeddings(ctx context.Context, messages []string, opts embedding.PassageOptions) ([]models.EmbeddingResult, error)
	PDFEmbeddings(ctx context.Context, file models.UploadFile, collection string) ([]models.EmbeddingResult, error)
	RAG(ctx context.Context, messages []string, opts embedding.RAGOptions) (*models.EmbeddingContextList, error)
}

type ChatClient interface {
	Generate(ctx context.Context, messages []models.Message, model string, options ...llms.CallOption) (string, error)
	StreamGenerate(ctx context.Context, messages []models.Message, model string, options ...llms.CallOption) *llm.Stream
}

type Config struct {
	Addr string
	// MaxUploadSize bounds multipart PDF uploads, in bytes.
	MaxUploadSize   int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

type Server struct {
	config     Config
	embeddings EmbeddingService
	chat       ChatClient
	tools      *tools.Registry
	logger     *slog.Logger
	router     *mux.Router
	upgrader   websocket.Upgrader
}

func New(config Config, embeddings EmbeddingService, chat ChatClient, registry *tools.Registry) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadSize == 0 {
		config.MaxUploadSize = 32 << 20
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}

	s := &Server{
		config:     config,
		embeddings: embeddings,
		chat:       chat,
		tools:      registry,
		logger:     config.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/embeddings/passages", s.handlePassages).Methods(http.MethodPost)
	v1.HandleFunc("/embeddings/pdf", s.handlePDF).Methods(http.MethodPost)
	v1.HandleFunc("/rag", s.handleRAG).Methods(http.MethodPost)
	v1.HandleFunc("/chat/completions", s.handleChat).Methods(http.MethodPost)
	v1.HandleFunc("/tools", s.handleListTools).Methods(http.MethodGet)
	v1.HandleFunc("/tools/{name}", s.handleCallTool).Methods(http.MethodPost)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", slog.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		s.logger.Info("Handled request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

// statusRecorder keeps the Flusher and Hijacker of the wrapped writer reachable
// for server-sent events and websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
