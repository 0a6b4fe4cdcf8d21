// Package session keeps one board document in sync with the relay.
//
// A Session owns exactly one connection to the relay at a time and multiplexes automerge sync
// messages and presence updates over it. Lost connections are re-dialled with exponential
// backoff until Close is called. Local edits made while disconnected stay in the document and
// are delivered by the sync protocol after the next connect.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/presence"
	"github.com/astromechza/codeboard/pkg/protocol"
)

type State int

const (
	Connecting State = iota
	Connected
	Disconnected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSyncInterrupted wraps the cause of a lost connection. It is retried, never returned to
// callers of the document.
var ErrSyncInterrupted = errors.New("sync interrupted")

// Conn is one live connection to the relay.
type Conn interface {
	ReadFrame() (protocol.Frame, error)
	WriteFrame(protocol.Frame) error
	Close() error
}

// Backend is the collaboration service the session talks to.
type Backend interface {
	// Snapshot returns the saved board document.
	Snapshot(ctx context.Context, boardID string) ([]byte, error)
	Dial(ctx context.Context, boardID, participantID string) (Conn, error)
}

type Options struct {
	ParticipantID string
	// FlushInterval is how often pending sync messages are generated without a local trigger.
	FlushInterval    time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 250 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type stateSubscription struct {
	id int
	fn func(State)
}

type Session struct {
	boardID  string
	opts     Options
	logger   *slog.Logger
	backend  Backend
	doc      *document.Document
	presence *presence.Channel

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	kick      chan struct{}
	unsubDoc  func()

	mu             sync.Mutex
	state          State
	conn           Conn
	savedSync      []byte
	stateObservers []stateSubscription
	nextSubID      int
}

// Open loads the board, connects once and starts keeping the connection alive. If anything
// fails before Open returns, every resource acquired so far is released.
func Open(ctx context.Context, backend Backend, boardID string, opts Options) (_ *Session, err error) {
	if opts.ParticipantID == "" {
		return nil, errors.New("participant id is required")
	}
	opts = opts.withDefaults()
	s := &Session{
		boardID:  boardID,
		opts:     opts,
		logger:   opts.Logger.With("board", boardID, "participant", opts.ParticipantID),
		backend:  backend,
		presence: presence.NewChannel(opts.ParticipantID, opts.Logger),
		kick:     make(chan struct{}, 1),
		state:    Connecting,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	raw, err := backend.Snapshot(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board %s: %w", boardID, err)
	}
	if s.doc, err = document.Load(raw, document.ActorIDFor(opts.ParticipantID)); err != nil {
		return nil, err
	}
	s.unsubDoc = s.doc.Subscribe(func(document.Change) {
		s.Kick()
	})
	conn, err := backend.Dial(ctx, boardID, opts.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("failed to dial board %s: %w", boardID, err)
	}

	s.wg.Add(1)
	go s.run(conn)
	return s, nil
}

func (s *Session) BoardID() string {
	return s.boardID
}

func (s *Session) Document() *document.Document {
	return s.doc
}

func (s *Session) Presence() *presence.Channel {
	return s.presence
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for every state transition and returns a function removing it.
func (s *Session) OnStateChange(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.stateObservers = append(s.stateObservers, stateSubscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stateObservers = slices.DeleteFunc(s.stateObservers, func(o stateSubscription) bool {
			return o.id == id
		})
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next || s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = next
	observers := slices.Clone(s.stateObservers)
	s.mu.Unlock()
	s.logger.Debug("session state", "state", next)
	for _, o := range observers {
		o.fn(next)
	}
}

// Kick asks the writer to flush sync messages now instead of waiting for the next tick.
func (s *Session) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SendPresence implements presence.Sender over the current connection.
func (s *Session) SendPresence(u presence.Update) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	f, err := protocol.PresenceFrame(u)
	if err != nil {
		return err
	}
	return conn.WriteFrame(f)
}

// Close stops reconnecting, closes the connection and releases the document. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		s.wg.Wait()
		s.release()
	})
	return nil
}

func (s *Session) release() {
	s.cancel()
	s.presence.Detach()
	s.presence.Reset()
	if s.unsubDoc != nil {
		s.unsubDoc()
	}
	if s.doc != nil {
		if err := s.doc.Close(); err != nil && !errors.Is(err, document.ErrClosed) {
			s.logger.Error("failed to close document", "err", err)
		}
	}
	s.setState(Closed)
}
