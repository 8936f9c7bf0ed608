// Package server is the authoritative peer: a token-gated websocket
// endpoint in front of a single world goroutine that owns all item state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/gravitas-games/economy/internal/catalog"
	"github.com/gravitas-games/economy/internal/config"
	"github.com/gravitas-games/economy/internal/ledger"
	"github.com/gravitas-games/economy/internal/shop"
	"github.com/gravitas-games/economy/internal/snapshot"
)

// Server represents the game server
type Server struct {
	config    *config.Config
	world     *World
	validator *TokenValidator
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
	logger    *slog.Logger

	// Owned resources, closed on shutdown
	redis    *redis.Client
	ledger   *ledger.Ledger
	snapshot *snapshot.Store

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx       context.Context
	cancel    context.CancelFunc
	worldDone chan struct{}
}

// New wires the server from configuration: redis, game data, ledger and
// snapshot cache.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	logger.Info("initializing server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to redis", "address", cfg.Redis.Address)

	cat, combos, err := catalog.Load(cfg.Data.Items)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	defs, err := shop.Load(cfg.Data.Shops)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	logger.Info("game data loaded", "items", cat.Len(), "shops", len(defs))

	store, err := snapshot.New(redisClient, cfg.Snapshot.Prefix, cfg.Snapshot.TTL)
	if err != nil {
		redisClient.Close()
		return nil, err
	}
	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		store.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	closeAll := func() {
		led.Close()
		store.Close()
		redisClient.Close()
	}

	world, err := NewWorld(cfg, cat, combos, defs,
		WithSnapshotStore(store),
		WithRecorder(led),
		WithWorldLogger(logger),
	)
	if err != nil {
		closeAll()
		return nil, err
	}
	if err := world.Restore(ctx); err != nil {
		closeAll()
		return nil, err
	}

	validator, err := NewTokenValidator(cfg.Auth, redisClient, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to initialize token validator: %w", err)
	}

	srv := NewWithWorld(cfg, world, validator, logger)
	srv.redis = redisClient
	srv.ledger = led
	srv.snapshot = store

	logger.Info("server initialized")
	return srv, nil
}

// NewWithWorld builds a server around an existing world and starts the
// world goroutine.
func NewWithWorld(cfg *config.Config, world *World, validator *TokenValidator, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		config:      cfg,
		world:       world,
		validator:   validator,
		logger:      logger,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		worldDone:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
	}
	go func() {
		defer close(srv.worldDone)
		if err := world.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("world stopped", "error", err)
		}
	}()
	return srv
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("websocket endpoint", "url", fmt.Sprintf("ws://%s/ws", addr))
	s.logger.Info("health endpoint", "url", fmt.Sprintf("http://%s/health", addr))

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}

	// Connections leave while the world still runs, so each player is saved.
	s.connMu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}

	s.cancel()
	select {
	case <-s.worldDone:
	case <-ctx.Done():
		s.logger.Warn("world did not stop in time")
	}

	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Error("ledger close error", "error", err)
		}
	}
	if s.snapshot != nil {
		s.snapshot.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		s.logger.Info("missing token", "remote", r.RemoteAddr)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	player, err := s.validator.ValidateToken(r.Context(), tokenString)
	if err != nil {
		s.logger.Info("invalid token", "remote", r.RemoteAddr, "error", err)
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, s, player)
	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	s.logger.Info("websocket connection established", "player", player.ID, "username", player.Username, "remote", r.RemoteAddr)

	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	s.logger.Info("websocket connection closed", "player", player.ID, "remote", r.RemoteAddr)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	players, err := s.world.PlayerCount(ctx)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "players": players})
}
