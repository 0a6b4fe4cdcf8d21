// Package relay is the collaboration backend. It holds the authoritative copy of every open
// board, syncs it with each connected participant and forwards presence between them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/store"
)

type Options struct {
	// FlushInterval is how often each peer's sync state is polled for messages.
	FlushInterval time.Duration
	Logger        *slog.Logger
}

type Server struct {
	store    store.Store
	opts     Options
	logger   *slog.Logger
	actorID  string
	upgrader websocket.Upgrader

	mu     sync.Mutex
	boards map[string]*board
}

func NewServer(st store.Store, opts Options) *Server {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		store:   st,
		opts:    opts,
		logger:  opts.Logger,
		actorID: document.NewActorID(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		boards: make(map[string]*board),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	r.Methods(http.MethodGet).Path("/boards/{board}/latest").HandlerFunc(s.getBoard)
	r.Methods(http.MethodGet).Path("/boards/{board}/sync").HandlerFunc(s.syncBoard)
	return r
}

// board returns the open board, loading it from the store or seeding a new one. The store is
// read without holding the lock so a slow load only delays requests for that board.
func (s *Server) board(ctx context.Context, id string) (*board, error) {
	s.mu.Lock()
	b, ok := s.boards[id]
	s.mu.Unlock()
	if ok {
		return b, nil
	}

	var doc *document.Document
	raw, err := s.store.Load(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if doc, err = document.New(s.actorID); err != nil {
			return nil, fmt.Errorf("failed to seed board: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load board: %w", err)
	default:
		if doc, err = document.Load(raw, s.actorID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[id]; ok {
		// another request opened the board first
		_ = doc.Close()
		return b, nil
	}
	b = newBoard(id, doc, s.logger)
	if raw == nil {
		b.dirty.Store(true)
		s.logger.Info("seeded board", "board", id)
	} else {
		s.logger.Info("loaded board", "board", id, "heads", doc.Heads())
	}
	s.boards[id] = b
	return b, nil
}

func (s *Server) getBoard(writer http.ResponseWriter, request *http.Request) {
	b, err := s.board(request.Context(), mux.Vars(request)["board"])
	if err != nil {
		s.logger.Error("failed to open board", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	raw, err := b.doc.Save()
	if err != nil {
		s.logger.Error("failed to save board", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(raw); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func (s *Server) syncBoard(writer http.ResponseWriter, request *http.Request) {
	participant := request.URL.Query().Get("participant")
	if participant == "" {
		http.Error(writer, "participant required", http.StatusBadRequest)
		return
	}
	b, err := s.board(request.Context(), mux.Vars(request)["board"])
	if err != nil {
		s.logger.Error("failed to open board", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	p, err := newPeer(b, participant, conn)
	if err != nil {
		s.logger.Error("failed to start sync", "err", err)
		return
	}
	b.join(p)
	defer b.leave(p)
	if err := p.serve(request.Context(), s.opts.FlushInterval); err != nil {
		s.logger.Debug("peer disconnected", "board", b.id, "participant", participant, "err", err)
	}
}

// Range calls fn for every open board until fn returns false.
func (s *Server) Range(fn func(id string, doc *document.Document) bool) {
	s.mu.Lock()
	boards := make([]*board, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, b)
	}
	s.mu.Unlock()
	for _, b := range boards {
		if !fn(b.id, b.doc) {
			return
		}
	}
}

// Backup saves every board that changed since its last save.
func (s *Server) Backup(ctx context.Context) error {
	s.mu.Lock()
	boards := make([]*board, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, b)
	}
	s.mu.Unlock()

	var errs []error
	for _, b := range boards {
		if !b.dirty.Swap(false) {
			continue
		}
		raw, err := b.doc.Save()
		if err == nil {
			err = s.store.Save(ctx, b.id, raw)
		}
		if err != nil {
			b.dirty.Store(true)
			errs = append(errs, fmt.Errorf("failed to backup board %s: %w", b.id, err))
			continue
		}
		s.logger.Info("backed up", "board", b.id, "heads", b.doc.Heads())
	}
	return errors.Join(errs...)
}

// RunBackups calls Backup every interval until ctx is done.
func (s *Server) RunBackups(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.Backup(ctx); err != nil {
				s.logger.Error("failed to backup doc in database", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes every board to the store and releases them.
func (s *Server) Close(ctx context.Context) error {
	err := s.Backup(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.boards {
		b.disconnectAll()
		_ = b.doc.Close()
		delete(s.boards, id)
	}
	return err
}
