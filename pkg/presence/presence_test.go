package presence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSender struct {
	sent []Update
	err  error
}

func (r *recordingSender) SendPresence(u Update) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, u)
	return nil
}

func TestPublish(t *testing.T) {
	c := NewChannel("me", nil)
	s := &recordingSender{}
	c.Attach(s)

	c.Publish(Metadata{Name: "me", Cursor: 1})
	c.Publish(Metadata{Name: "me", Cursor: 5})

	assert.Len(t, s.sent, 2)
	assert.Equal(t, uint64(2), s.sent[1].Seq)
	assert.Equal(t, 5, s.sent[1].Metadata.Cursor)
	assert.Equal(t, map[string]Metadata{"me": {Name: "me", Cursor: 5}}, c.Snapshot())

	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), last.Seq)
}

func TestPublish_dropsWhenDisconnected(t *testing.T) {
	c := NewChannel("me", nil)
	c.Publish(Metadata{Name: "offline"})

	s := &recordingSender{err: errors.New("connection closed")}
	c.Attach(s)
	c.Publish(Metadata{Name: "broken"})
	assert.Empty(t, s.sent)

	c.Detach()
	c.Publish(Metadata{Name: "again"})
	assert.Equal(t, "again", c.Snapshot()["me"].Name)
}

func TestReceive_lastWriterWins(t *testing.T) {
	c := NewChannel("me", nil)
	c.Receive(Update{ParticipantID: "bob", Seq: 2, Metadata: &Metadata{Name: "bob", Cursor: 2}})
	c.Receive(Update{ParticipantID: "bob", Seq: 1, Metadata: &Metadata{Name: "bob", Cursor: 1}})
	assert.Equal(t, 2, c.Snapshot()["bob"].Cursor)

	c.Receive(Update{ParticipantID: "bob", Seq: 3, Metadata: &Metadata{Name: "bob", Cursor: 9}})
	assert.Equal(t, 9, c.Snapshot()["bob"].Cursor)

	// our own echo is ignored
	c.Receive(Update{ParticipantID: "me", Seq: 1, Metadata: &Metadata{Name: "ghost"}})
	_, ok := c.Snapshot()["me"]
	assert.False(t, ok)
}

func TestReceive_leave(t *testing.T) {
	c := NewChannel("me", nil)
	var seen []map[string]Metadata
	cancel := c.Subscribe(func(m map[string]Metadata) {
		seen = append(seen, m)
	})
	defer cancel()

	c.Receive(Update{ParticipantID: "bob", Seq: 1, Metadata: &Metadata{Name: "bob"}})
	c.Receive(Update{ParticipantID: "bob", Seq: 2})
	assert.Empty(t, c.Snapshot())
	assert.Len(t, seen, 2)
	assert.Contains(t, seen[0], "bob")
	assert.NotContains(t, seen[1], "bob")
}

func TestResetAndRemove(t *testing.T) {
	c := NewChannel("me", nil)
	c.Publish(Metadata{Name: "me"})
	c.Receive(Update{ParticipantID: "a", Seq: 1, Metadata: &Metadata{Name: "a"}})
	c.Receive(Update{ParticipantID: "b", Seq: 1, Metadata: &Metadata{Name: "b"}})

	c.Remove("a")
	assert.NotContains(t, c.Snapshot(), "a")

	c.Reset()
	assert.Equal(t, map[string]Metadata{"me": {Name: "me"}}, c.Snapshot())
}
