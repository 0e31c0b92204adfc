// Package gateway exposes the coalescing agent over HTTP: a JSON query
// endpoint, an SSE streaming variant, and a health probe.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Camara-Agent-Gateway/agent/contract"
	historyx "github.com/tanpawarit/Camara-Agent-Gateway/history"
)

// Publisher delivers a resolved result to an external webhook. Optional.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// CamaraClient forwards REST verbs to a CAMARA backend through the
// deduplication layer.
type CamaraClient interface {
	Get(ctx context.Context, endpoint string) (map[string]any, error)
	Post(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error)
	Delete(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error)
}

type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"300s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
	Debug           bool          `envconfig:"DEBUG" split_words:"true" default:"false"`
}

// Server wires the agent runner, session history and result publisher behind
// the HTTP surface. History and publisher are best-effort collaborators:
// their failures are logged, never returned to the caller.
type Server struct {
	runner    contractx.Runner
	camara    CamaraClient
	history   historyx.Store
	publisher Publisher
	engine    *gin.Engine
	http      *http.Server

	sideEffectTimeout time.Duration
}

func NewServer(cfg Config, runner contractx.Runner, camara CamaraClient, history historyx.Store, publisher Publisher) (*Server, error) {
	if runner == nil {
		return nil, errors.New("agent runner is required")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		runner:            runner,
		camara:            camara,
		history:           history,
		publisher:         publisher,
		engine:            engine,
		sideEffectTimeout: 5 * time.Second,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.POST("/agent/query", s.handleQuery)
	engine.POST("/agent/query/stream", s.handleQueryStream)

	if camara != nil {
		group := engine.Group("/camara")
		group.GET("/*endpoint", s.handleCamaraGet)
		group.POST("/*endpoint", s.handleCamaraPost)
		group.DELETE("/*endpoint", s.handleCamaraDelete)
	}

	s.http = &http.Server{
		Addr:         strings.TrimSpace(cfg.Addr),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the routed engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("gateway listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// recordResolution appends the exchange to session history and publishes it
// when a publisher is configured.
func (s *Server) recordResolution(req contractx.QueryRequest, res contractx.QueryResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sideEffectTimeout)
	defer cancel()

	if s.history != nil && strings.TrimSpace(req.SessionID) != "" {
		err := s.history.Append(ctx, historyx.Record{
			SessionID: req.SessionID,
			Query:     req.Query,
			Answer:    res.Answer,
			CreatedAt: res.ResolvedAt,
		})
		if err != nil {
			log.Warn().Err(err).Str("session_id", req.SessionID).Msg("history append failed")
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res); err != nil {
			log.Warn().Err(err).Msg("result publish failed")
		}
	}
}
