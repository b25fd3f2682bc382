package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/infra/auth"
	"github.com/bcromer77/prooftimelines/internal/infra/db"
	"github.com/bcromer77/prooftimelines/internal/infra/policyopa"
	"github.com/bcromer77/prooftimelines/internal/infra/ratelimit"
	"github.com/bcromer77/prooftimelines/internal/logging"
	"github.com/bcromer77/prooftimelines/internal/usecase"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// HealthChecker reports whether the backing database answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger logging.Logger
	health HealthChecker

	cases  *usecase.CaseService
	writer *usecase.LedgerWriter
	reader *usecase.TimelineReader

	authenticator auth.Authenticator

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Cases         *usecase.CaseService
	Writer        *usecase.LedgerWriter
	Reader        *usecase.TimelineReader
	Authenticator auth.Authenticator
	RateLimiter   domain.RateLimiter
	Logger        logging.Logger
	Health        HealthChecker
}

// NewServer wires repositories over store, the upload policy, the identity
// strategy and the rate limiter from cfg.
func NewServer(ctx context.Context, cfg config.Config, store *db.Store, blobs domain.BlobStore, logger logging.Logger) (*Server, error) {
	if store == nil || store.DB == nil {
		return nil, errors.New("database store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	authenticator, err := auth.NewAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}
	policy, err := policyopa.NewEngine(ctx, policyopa.Options{
		PolicyPath:       cfg.UploadPolicyPath,
		MaxBytes:         cfg.MaxUploadBytes,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("init upload policy: %w", err)
	}
	limiter, err := ratelimit.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}
	logger.Info(ctx, "upload policy loaded", "policy_hash", policy.PolicyHash())

	cases := db.NewCaseRepository(store.DB)
	events := db.NewEventRepository(store.DB)
	evidence := db.NewEvidenceRepository(store.DB)
	ledgerRepo := db.NewLedgerRepository(store.DB)
	reader := usecase.NewTimelineReader(cases, events, evidence, ledgerRepo, blobs)
	reader.Snapshots = db.NewSnapshotter(store)

	return NewServerWithDeps(cfg, ServerDeps{
		Cases: usecase.NewCaseService(cases, events),
		Writer: &usecase.LedgerWriter{
			Cases:          cases,
			Events:         events,
			Evidence:       evidence,
			Blobs:          blobs,
			Policy:         policy,
			Logger:         logger,
			Clock:          time.Now,
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		Reader:        reader,
		Authenticator: authenticator,
		RateLimiter:   limiter,
		Logger:        logger,
		Health:        store,
	}), nil
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        deps.Logger,
		health:        deps.Health,
		cases:         deps.Cases,
		writer:        deps.Writer,
		reader:        deps.Reader,
		authenticator: deps.Authenticator,
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.Use(s.requestLogger())

	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1", s.requireAuth())
	{
		v1.POST("/cases", s.limit(ratelimit.RouteCasesCreate), s.handleCreateCase)
		v1.GET("/cases", s.handleListCases)
		v1.GET("/cases/:id", s.handleGetCase)
		v1.POST("/cases/:id/events", s.limit(ratelimit.RouteEventsCreate), s.handleCreateEvent)
		v1.GET("/cases/:id/events", s.handleListEvents)
		v1.POST("/cases/:id/evidence", s.limit(ratelimit.RouteEvidenceIngest), s.handleIngest)
		v1.GET("/cases/:id/evidence/:evidence_id/content", s.handleEvidenceContent)
		v1.GET("/cases/:id/timeline", s.handleTimeline)
		v1.GET("/cases/:id/export", s.handleExport)
		v1.GET("/cases/:id/summary", s.handleSummary)
		v1.GET("/cases/:id/ledger/verify", s.handleVerifyLedger)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
