package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/protocol"
)

// prolongedAttempts is the number of failed reconnects after which the interruption is logged
// as a warning instead of at debug level.
const prolongedAttempts = 5

func (s *Session) run(conn Conn) {
	defer s.wg.Done()
	for {
		err := s.serve(conn)
		if s.ctx.Err() != nil {
			return
		}
		s.setState(Disconnected)
		s.logger.Info("board connection lost", "err", fmt.Errorf("%w: %w", ErrSyncInterrupted, err))
		if conn = s.reconnect(); conn == nil {
			return
		}
	}
}

func (s *Session) reconnect() Conn {
	s.setState(Reconnecting)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.ReconnectInitial
	b.MaxInterval = s.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	for attempt := 1; ; attempt++ {
		conn, err := s.backend.Dial(s.ctx, s.boardID, s.opts.ParticipantID)
		if err == nil {
			s.logger.Info("board connection restored", "attempts", attempt)
			return conn
		}
		if s.ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		if attempt >= prolongedAttempts {
			s.logger.Warn("still unable to reach relay", "attempt", attempt, "retry_in", wait, "err", err)
		} else {
			s.logger.Debug("failed to reconnect", "attempt", attempt, "retry_in", wait, "err", err)
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return nil
		}
	}
}

// serve pumps frames over conn until it fails or the session is closed. The sync state is
// saved on exit so the next connection resumes where this one stopped.
func (s *Session) serve(conn Conn) error {
	s.mu.Lock()
	saved := s.savedSync
	s.mu.Unlock()
	peer, err := s.doc.NewSyncPeer(saved)
	if err != nil {
		_ = conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(Connected)
	s.presence.Attach(s)
	if last, ok := s.presence.Last(); ok && last.Metadata != nil {
		s.presence.Publish(*last.Metadata)
	}

	errs := make(chan error, 2)
	done := make(chan struct{})
	wg := new(sync.WaitGroup)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.readLoop(conn, peer)
	}()
	go func() {
		defer wg.Done()
		errs <- s.writeLoop(conn, peer, done)
	}()

	var first error
	select {
	case first = <-errs:
	case <-s.ctx.Done():
		first = s.ctx.Err()
	}
	close(done)
	s.presence.Detach()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()
	wg.Wait()
	s.presence.Reset()

	s.mu.Lock()
	s.savedSync = peer.Save()
	s.mu.Unlock()
	return first
}

func (s *Session) readLoop(conn Conn, peer *document.SyncPeer) error {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownFrame) {
				s.logger.Debug("skipping frame", "err", err)
				continue
			}
			return err
		}
		switch f.Kind {
		case protocol.KindSync:
			if err := peer.ReceiveMessage(f.Payload); err != nil {
				return err
			}
			// the relay expects a reply even when nothing changed locally
			s.Kick()
		case protocol.KindPresence:
			u, err := f.Presence()
			if err != nil {
				s.logger.Debug("skipping presence frame", "err", err)
				continue
			}
			s.presence.Receive(u)
		}
	}
}

func (s *Session) writeLoop(conn Conn, peer *document.SyncPeer, done <-chan struct{}) error {
	t := time.NewTicker(s.opts.FlushInterval)
	defer t.Stop()
	for {
		if err := flush(conn, peer); err != nil {
			return err
		}
		select {
		case <-t.C:
		case <-s.kick:
		case <-done:
			return nil
		}
	}
}

func flush(conn Conn, peer *document.SyncPeer) error {
	for {
		msg, ok := peer.GenerateMessage()
		if !ok {
			return nil
		}
		if err := conn.WriteFrame(protocol.SyncFrame(msg)); err != nil {
			return err
		}
	}
}
