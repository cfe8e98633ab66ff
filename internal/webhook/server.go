package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mattjoyce/milestone-hook/internal/milestone"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    Config
	processor Processor
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new webhook server instance.
func New(config Config, processor Processor, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}

	return &Server{
		config:    config,
		processor: processor,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
		"signature_header", s.config.SignatureHeader,
	)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleMilestone)
	r.Get("/healthz", s.handleHealth)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"delivery_id", r.Header.Get(DeliveryHeader),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleMilestone reads the raw body and hands it to the processor.
// Unsigned requests are passed on without reading the body so the
// missing-signature outcome wins over the size limit.
func (s *Server) handleMilestone(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(s.config.SignatureHeader)

	var body []byte
	if signature != "" {
		limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
		var err error
		body, err = io.ReadAll(limitedReader)
		if err != nil {
			s.respondOutcome(w, milestone.Outcome{
				Status:  http.StatusBadRequest,
				Message: "Failed to read request body.",
			})
			return
		}

		if int64(len(body)) > s.config.MaxBodySize {
			s.logger.Warn("webhook payload too large",
				"path", r.URL.Path,
				"max_body_size", s.config.MaxBodySize,
			)
			s.respondOutcome(w, milestone.Outcome{
				Status:  http.StatusRequestEntityTooLarge,
				Message: "Payload too large.",
			})
			return
		}
	}

	deliveryID := r.Header.Get(DeliveryHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	outcome := s.processor.Process(r.Context(), milestone.Request{
		Payload:         body,
		SignatureHeader: signature,
		DeliveryID:      deliveryID,
	})

	s.respondOutcome(w, outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) respondOutcome(w http.ResponseWriter, outcome milestone.Outcome) {
	s.respondJSON(w, outcome.Status, outcome)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
