// Package api serves the dashboard over HTTP. Every route requires a bearer
// token naming the actor; what the actor sees is decided by the visibility
// rules, never by the request.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/events"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/queue"
	"github.com/harrisonrobin/taskboard/pkg/store"
	"github.com/harrisonrobin/taskboard/pkg/syncer"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Store   store.TaskStore
	Roster  model.Roster
	DataDir string // pending queues live below it
	Secret  []byte
	Bus     *events.Bus
	Logger  *zap.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	store  store.TaskStore
	roster model.Roster
	secret []byte
	bus    *events.Bus
	syncer *syncer.Scheduler
	queues *queueSet
	logger *zap.Logger
	router *gin.Engine
}

// NewServer wires the routes. The bus is created when opts.Bus is nil.
func NewServer(opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("api: a JWT secret is required")
	}
	if opts.Store == nil {
		return nil, errors.New("api: a task store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		store:  opts.Store,
		roster: opts.Roster.Clone(),
		secret: opts.Secret,
		bus:    bus,
		syncer: syncer.New(opts.Store, bus, logger),
		queues: &queueSet{dir: opts.DataDir, open: make(map[string]*queue.Queue)},
		logger: logger,
		router: router,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", s.authMiddleware())
	{
		api.GET("/views", s.handleViews)
		api.GET("/views/:view/tasks", s.handleViewTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.POST("/sync", s.handleSync)
		api.GET("/events", s.handleEvents)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Event streams only end when the bus closes.
	s.bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// queueSet keeps one queue per actor so concurrent requests never race on
// the same file through separate handles.
type queueSet struct {
	dir  string
	mu   sync.Mutex
	open map[string]*queue.Queue
}

func (qs *queueSet) get(actorID string) (*queue.Queue, error) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if q, ok := qs.open[actorID]; ok {
		return q, nil
	}
	q, err := queue.Open(qs.dir, actorID)
	if err != nil {
		return nil, err
	}
	qs.open[actorID] = q
	return q, nil
}
