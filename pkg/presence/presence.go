// Package presence tracks ephemeral per-participant metadata such as names and cursors.
//
// Nothing here is durable. Each participant's newest update wins, updates are dropped while
// no connection is attached, and entries disappear when their participant leaves.
package presence

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

type Metadata struct {
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Cursor       int    `json:"cursor"`
	SelectionEnd int    `json:"selection_end,omitempty"`
}

// Update is what travels between participants. A nil Metadata announces that the participant
// left.
type Update struct {
	ParticipantID string    `json:"participant"`
	Seq           uint64    `json:"seq"`
	Metadata      *Metadata `json:"metadata,omitempty"`
}

// Sender ships an update to the backend.
type Sender interface {
	SendPresence(Update) error
}

type Observer func(map[string]Metadata)

type entry struct {
	seq  uint64
	meta Metadata
}

type subscription struct {
	id int
	fn Observer
}

type Channel struct {
	self   string
	logger *slog.Logger

	mu        sync.Mutex
	sender    Sender
	seq       uint64
	last      *Update
	entries   map[string]entry
	observers []subscription
	nextSubID int
}

func NewChannel(self string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{self: self, logger: logger, entries: make(map[string]entry)}
}

func (c *Channel) Self() string {
	return c.self
}

// Attach routes future publishes through s.
func (c *Channel) Attach(s Sender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = s
}

// Detach stops sending. Publishes made while detached are recorded locally only.
func (c *Channel) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sender = nil
}

// Publish records the local participant's metadata and sends it if a connection is attached.
func (c *Channel) Publish(m Metadata) {
	c.mu.Lock()
	c.seq++
	u := Update{ParticipantID: c.self, Seq: c.seq, Metadata: &m}
	c.last = &u
	c.entries[c.self] = entry{seq: u.Seq, meta: m}
	sender := c.sender
	c.mu.Unlock()

	if sender == nil {
		c.logger.Debug("dropping presence update, not connected", "seq", u.Seq)
	} else if err := sender.SendPresence(u); err != nil {
		c.logger.Debug("dropping presence update", "seq", u.Seq, "err", err)
	}
	c.notify()
}

// Last returns the most recent local update, if any.
func (c *Channel) Last() (Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Update{}, false
	}
	return *c.last, true
}

// Receive applies a remote update. Updates older than the one already held are ignored.
func (c *Channel) Receive(u Update) {
	if u.ParticipantID == "" || u.ParticipantID == c.self {
		return
	}
	c.mu.Lock()
	current, ok := c.entries[u.ParticipantID]
	if ok && u.Seq < current.seq {
		c.mu.Unlock()
		return
	}
	if u.Metadata == nil {
		delete(c.entries, u.ParticipantID)
	} else {
		c.entries[u.ParticipantID] = entry{seq: u.Seq, meta: *u.Metadata}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) Remove(participantID string) {
	c.mu.Lock()
	_, ok := c.entries[participantID]
	delete(c.entries, participantID)
	c.mu.Unlock()
	if ok {
		c.notify()
	}
}

// Reset forgets every remote participant, keeping the local entry.
func (c *Channel) Reset() {
	c.mu.Lock()
	changed := false
	for id := range c.entries {
		if id != c.self {
			delete(c.entries, id)
			changed = true
		}
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Snapshot returns all known participants including the local one.
func (c *Channel) Snapshot() map[string]Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Channel) snapshotLocked() map[string]Metadata {
	out := make(map[string]Metadata, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.meta
	}
	return out
}

func (c *Channel) Subscribe(fn Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.observers = append(c.observers, subscription{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.observers = slices.DeleteFunc(c.observers, func(s subscription) bool {
			return s.id == id
		})
	}
}

func (c *Channel) notify() {
	c.mu.Lock()
	snapshot := c.snapshotLocked()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()
	for _, s := range observers {
		s.fn(maps.Clone(snapshot))
	}
}
