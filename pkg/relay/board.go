package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/presence"
	"github.com/astromechza/codeboard/pkg/protocol"
)

type board struct {
	id     string
	doc    *document.Document
	logger *slog.Logger
	dirty  atomic.Bool

	mu       sync.Mutex
	peers    map[*peer]struct{}
	presence map[string]presence.Update
}

func newBoard(id string, doc *document.Document, logger *slog.Logger) *board {
	b := &board{
		id:       id,
		doc:      doc,
		logger:   logger.With("board", id),
		peers:    make(map[*peer]struct{}),
		presence: make(map[string]presence.Update),
	}
	doc.Subscribe(func(document.Change) {
		b.dirty.Store(true)
		b.kickAll()
	})
	return b
}

func (b *board) kickAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.peers {
		p.kick()
	}
}

func (b *board) disconnectAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.peers {
		_ = p.conn.Close()
	}
}

// join registers p and replays the presence of everyone else on the board.
func (b *board) join(p *peer) {
	b.mu.Lock()
	b.peers[p] = struct{}{}
	cached := make([]presence.Update, 0, len(b.presence))
	for id, u := range b.presence {
		if id != p.participant {
			cached = append(cached, u)
		}
	}
	count := len(b.peers)
	b.mu.Unlock()

	b.logger.Info("participant joined", "participant", p.participant, "peers", count)
	for _, u := range cached {
		p.sendPresence(u)
	}
}

// leave unregisters p. When it was the participant's last connection, everyone else is told
// the participant left.
func (b *board) leave(p *peer) {
	b.mu.Lock()
	delete(b.peers, p)
	stillHere := false
	for q := range b.peers {
		if q.participant == p.participant {
			stillHere = true
			break
		}
	}
	var leave *presence.Update
	if !stillHere {
		last, known := b.presence[p.participant]
		delete(b.presence, p.participant)
		if known {
			leave = &presence.Update{ParticipantID: p.participant, Seq: last.Seq + 1}
		}
	}
	others := b.othersLocked(p)
	count := len(b.peers)
	b.mu.Unlock()

	b.logger.Info("participant left", "participant", p.participant, "peers", count)
	if leave != nil {
		broadcast(others, *leave)
	}
}

// relayPresence caches u and forwards it to everyone except its sender.
func (b *board) relayPresence(from *peer, u presence.Update) {
	u.ParticipantID = from.participant
	b.mu.Lock()
	if current, ok := b.presence[u.ParticipantID]; ok && u.Seq < current.Seq {
		b.mu.Unlock()
		return
	}
	if u.Metadata == nil {
		delete(b.presence, u.ParticipantID)
	} else {
		b.presence[u.ParticipantID] = u
	}
	others := b.othersLocked(from)
	b.mu.Unlock()
	broadcast(others, u)
}

func (b *board) othersLocked(p *peer) []*peer {
	out := make([]*peer, 0, len(b.peers))
	for q := range b.peers {
		if q != p && q.participant != p.participant {
			out = append(out, q)
		}
	}
	return out
}

func broadcast(peers []*peer, u presence.Update) {
	if len(peers) == 0 {
		return
	}
	f, err := protocol.PresenceFrame(u)
	if err != nil {
		return
	}
	for _, p := range peers {
		_ = p.conn.WriteFrame(f)
	}
}
