package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/presence"
	"github.com/astromechza/codeboard/pkg/protocol"
)

// peer is one websocket connection to a board.
type peer struct {
	board       *board
	participant string
	conn        *protocol.WebsocketConn
	sync        *document.SyncPeer
	kicks       chan struct{}
}

func newPeer(b *board, participant string, conn *websocket.Conn) (*peer, error) {
	ss, err := b.doc.NewSyncPeer(nil)
	if err != nil {
		return nil, err
	}
	return &peer{
		board:       b,
		participant: participant,
		conn:        protocol.NewWebsocketConn(conn),
		sync:        ss,
		kicks:       make(chan struct{}, 1),
	}, nil
}

func (p *peer) kick() {
	select {
	case p.kicks <- struct{}{}:
	default:
	}
}

func (p *peer) sendPresence(u presence.Update) {
	f, err := protocol.PresenceFrame(u)
	if err != nil {
		return
	}
	_ = p.conn.WriteFrame(f)
}

// serve reads and writes until the connection fails or ctx is done.
func (p *peer) serve(ctx context.Context, flushInterval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		errs <- p.readLoop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.conn.Close()
		errs <- p.writeLoop(ctx, flushInterval)
	}()

	wg.Wait()
	return <-errs
}

func (p *peer) readLoop() error {
	for {
		f, err := p.conn.ReadFrame()
		if errors.Is(err, protocol.ErrUnknownFrame) {
			p.board.logger.Debug("skipping frame", "participant", p.participant, "err", err)
			continue
		} else if err != nil {
			return err
		}
		switch f.Kind {
		case protocol.KindSync:
			if err := p.sync.ReceiveMessage(f.Payload); err != nil {
				return fmt.Errorf("failed to receive message: %w", err)
			}
			p.kick()
		case protocol.KindPresence:
			u, err := f.Presence()
			if err != nil {
				p.board.logger.Debug("skipping presence frame", "participant", p.participant, "err", err)
				continue
			}
			p.board.relayPresence(p, u)
		}
	}
}

func (p *peer) writeLoop(ctx context.Context, flushInterval time.Duration) error {
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	for {
		for {
			msg, ok := p.sync.GenerateMessage()
			if !ok {
				break
			}
			if err := p.conn.WriteFrame(protocol.SyncFrame(msg)); err != nil {
				return err
			}
		}
		select {
		case <-t.C:
		case <-p.kicks:
		case <-ctx.Done():
			return nil
		}
	}
}
