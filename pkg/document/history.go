package document

import (
	"fmt"
	"time"

	"github.com/automerge/automerge-go"
)

// Revision is one change in the document history together with the text as of that change.
type Revision struct {
	Hash         automerge.ChangeHash
	Actor        string
	Seq          uint64
	Message      string
	Timestamp    time.Time
	Dependencies []automerge.ChangeHash
	Text         string
}

// History returns every change in causal order with the text each one produced.
func (d *Document) History() ([]Revision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	changes, err := d.doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	out := make([]Revision, 0, len(changes))
	for _, change := range changes {
		docAt, err := d.doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		text, _ := docAt.Path(TextKey).Text().Get()
		out = append(out, Revision{
			Hash:         change.Hash(),
			Actor:        change.ActorID(),
			Seq:          change.ActorSeq(),
			Message:      change.Message(),
			Timestamp:    change.Timestamp(),
			Dependencies: change.Dependencies(),
			Text:         text,
		})
	}
	return out, nil
}
