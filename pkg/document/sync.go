package document

import (
	"fmt"
	"slices"

	"github.com/automerge/automerge-go"
)

// SyncPeer tracks the automerge sync protocol against one remote peer. Messages received through
// it are merged with the same guarantees as ApplyRemoteOperations.
type SyncPeer struct {
	d     *Document
	state *automerge.SyncState
}

// NewSyncPeer starts a sync state. A non-empty saved value from SyncPeer.Save resumes a previous
// exchange with the same peer.
func (d *Document) NewSyncPeer(saved []byte) (*SyncPeer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	if len(saved) == 0 {
		return &SyncPeer{d: d, state: automerge.NewSyncState(d.doc)}, nil
	}
	ss, err := automerge.LoadSyncState(d.doc, saved)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	return &SyncPeer{d: d, state: ss}, nil
}

// GenerateMessage returns the next message for the peer, or false when there is nothing to send.
func (p *SyncPeer) GenerateMessage() ([]byte, bool) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if p.d.doc == nil {
		return nil, false
	}
	msg, valid := p.state.GenerateMessage()
	if !valid || msg == nil {
		return nil, false
	}
	return msg.Bytes(), true
}

// ReceiveMessage merges a message from the peer.
func (p *SyncPeer) ReceiveMessage(raw []byte) error {
	p.d.mu.Lock()
	if p.d.doc == nil {
		p.d.mu.Unlock()
		return ErrClosed
	}
	before := p.d.doc.Heads()
	if _, err := p.state.ReceiveMessage(raw); err != nil {
		p.d.mu.Unlock()
		return fmt.Errorf("failed to receive message: %w", err)
	}
	if slices.Equal(before, p.d.doc.Heads()) {
		p.d.mu.Unlock()
		return nil
	}
	text, err := p.d.text.Get()
	p.d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}
	p.d.notify(Change{Text: text, Remote: true})
	return nil
}

// Save encodes the durable part of the sync state.
func (p *SyncPeer) Save() []byte {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if p.d.doc == nil {
		return nil
	}
	return p.state.Save()
}
