// Package ops exposes the operational HTTP surface: health, breaker state
// and dead-letter inspection/requeue. It is meant for operators and
// dashboards, not for lead traffic.
package ops

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"leadchat_backend/internal/leads/repository"
	"leadchat_backend/platform/apperr"
	"leadchat_backend/platform/config"
	"leadchat_backend/platform/logger"
	"leadchat_backend/platform/resilience"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BreakerReader exposes the AI circuit breaker for inspection.
type BreakerReader interface {
	BreakerCounters() (failures int, state resilience.BreakerState)
}

// DLQStore is the slice of the repository the ops API needs.
type DLQStore interface {
	ListDeadLetters(ctx context.Context, pendingOnly bool, limit int) ([]repository.DeadLetter, error)
	GetDeadLetter(ctx context.Context, id uuid.UUID) (repository.DeadLetter, error)
	MarkDeadLetterRequeued(ctx context.Context, id uuid.UUID) error
}

// Requeuer pushes a dead letter back onto its source queue.
type Requeuer interface {
	EnqueueRaw(ctx context.Context, taskType, queueName string, data []byte) error
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	engine *gin.Engine
	addr   string

	breaker  BreakerReader
	store    DLQStore
	requeuer Requeuer
	db       Pinger
	log      *logger.Logger
}

func NewServer(
	cfg config.OpsConfig,
	env string,
	breaker BreakerReader,
	store DLQStore,
	requeuer Requeuer,
	db Pinger,
	log *logger.Logger,
) *Server {
	if env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))

	corsCfg := cors.DefaultConfig()
	if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	s := &Server{
		engine:   engine,
		addr:     cfg.GetOpsAddr(),
		breaker:  breaker,
		store:    store,
		requeuer: requeuer,
		db:       db,
		log:      log,
	}

	engine.GET("/healthz", s.handleHealth)

	authed := engine.Group("/ops")
	authed.Use(rateLimit(log))
	authed.Use(bearerAuth(cfg.GetOpsJWTSecret(), env, log))
	authed.GET("/breaker", s.handleBreaker)
	authed.GET("/dlq", s.handleListDLQ)
	authed.POST("/dlq/:id/requeue", s.handleRequeueDLQ)

	return s
}

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBreaker(c *gin.Context) {
	failures, state := s.breaker.BreakerCounters()
	c.JSON(http.StatusOK, gin.H{
		"state":          state.String(),
		"recentFailures": failures,
	})
}

func (s *Server) handleListDLQ(c *gin.Context) {
	pendingOnly := c.Query("pending") == "true"

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			abortWithError(c, apperr.BadRequest("limit must be an integer between 1 and 500"))
			return
		}
		limit = parsed
	}

	entries, err := s.store.ListDeadLetters(c.Request.Context(), pendingOnly, limit)
	if err != nil {
		abortWithError(c, apperr.Wrap(apperr.KindInternal, "failed to list dead letters", err))
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, gin.H{
			"id":            entry.ID,
			"originalJobId": entry.OriginalJobID,
			"sourceQueue":   entry.SourceQueue,
			"taskType":      entry.TaskType,
			"failedAt":      entry.FailedAt,
			"error":         entry.Error,
			"attemptsMade":  entry.AttemptsMade,
			"requeuedAt":    entry.RequeuedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// handleRequeueDLQ pushes the stored payload back onto its source queue and
// marks the entry requeued. The entry is kept, not deleted, so the audit
// trail survives the retry.
func (s *Server) handleRequeueDLQ(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, apperr.BadRequest("invalid dead letter id"))
		return
	}

	ctx := c.Request.Context()
	entry, err := s.store.GetDeadLetter(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		abortWithError(c, apperr.NotFound("dead letter not found"))
		return
	}
	if err != nil {
		abortWithError(c, apperr.Wrap(apperr.KindInternal, "failed to load dead letter", err))
		return
	}
	if entry.RequeuedAt != nil {
		abortWithError(c, apperr.BadRequest("dead letter already requeued"))
		return
	}

	if err := s.requeuer.EnqueueRaw(ctx, entry.TaskType, entry.SourceQueue, entry.Data); err != nil {
		abortWithError(c, apperr.Wrap(apperr.KindUnavailable, "failed to requeue dead letter", err))
		return
	}

	if err := s.store.MarkDeadLetterRequeued(ctx, id); err != nil {
		// The job is already back on the queue; surface but do not fail.
		s.log.Error("failed to mark dead letter requeued", "error", err, "id", id)
	}

	s.log.Info("dead letter requeued", "id", id, "sourceQueue", entry.SourceQueue)
	c.JSON(http.StatusOK, gin.H{"status": "requeued", "id": id})
}

func abortWithError(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{"error": err.Message})
}
