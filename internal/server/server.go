package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/franckalain/healthwise/internal/config"
	"github.com/franckalain/healthwise/internal/database"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/session"
)

// shutdownTimeout bounds the graceful shutdown.
const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg      config.ServerConfig
	store    database.Store
	flows    *flows.Flows
	sessions *session.Manager
	echo     *echo.Echo
	upgrader websocket.Upgrader
	clients  sync.Map // connection id -> *wsSession
}

func New(cfg config.ServerConfig, store database.Store, fl *flows.Flows, sessions *session.Manager) *Server {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = config.DefaultHistoryLimit
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		flows:    fl,
		sessions: sessions,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.echo = s.registerRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) registerRoutes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = s.cfg.Debug
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestLogger)
	// Without configured origins only same-origin callers are served.
	if len(s.cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     s.cfg.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderAccept, echo.HeaderContentType, echo.HeaderXRequestID},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	e.Use(middleware.BodyLimit("12M"))

	e.GET("/health", s.handleHealth)

	api := e.Group("/api", s.sessions.Middleware())
	api.GET("/profile", s.handleGetProfile)
	api.PUT("/profile", s.handlePutProfile)
	api.GET("/history", s.handleHistory)
	api.GET("/dashboard", s.handleDashboard)
	api.GET("/quote", s.handleQuote)
	api.GET("/products", s.handleProducts)
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/analyze/image", s.handleAnalyzeImage)
	api.POST("/recommendations", s.handleRecommendations)
	api.POST("/chat", s.handleChat)
	api.POST("/voice", s.handleVoice)

	e.GET("/ws", s.handleWebSocket, s.sessions.Middleware())

	if s.cfg.StaticDir != "" {
		e.Static("/", s.cfg.StaticDir)
	}
	return e
}

// checkOrigin accepts websocket handshakes from the serving origin and from
// the configured allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

// requestLogger tags every request with an id and a request-scoped logger,
// then logs its outcome.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		requestID := req.Header.Get(echo.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		logger = *zerolog.Ctx(c.Request().Context())
		logger.Info().
			Str("method", req.Method).
			Str("path", c.Path()).
			Int("status", c.Response().Status).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
		return nil
	}
}

// Start serves on the configured port until ctx is cancelled, then shuts
// down gracefully and closes open websocket sessions.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.echo,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", s.cfg.Port).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("Server exited")
	return nil
}

func (s *Server) closeClients() {
	s.clients.Range(func(_, v any) bool {
		v.(*wsSession).close()
		return true
	})
}
