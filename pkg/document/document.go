// Package document holds the replicated source text of a board.
//
// A Document wraps an automerge document whose root key "source" is a Text object. Local edits
// are committed as automerge changes which can be shipped to other replicas either directly as an
// OperationSet or through the automerge sync protocol (see SyncPeer). Replicas that have seen the
// same set of changes always produce the same text.
package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
)

// TextKey is the root map key holding the shared text object.
const TextKey = "source"

var (
	ErrClosed       = errors.New("document is closed")
	ErrInvalidRange = errors.New("invalid edit range")
)

// Range selects the runes [Start, End) of the current text.
type Range struct {
	Start int
	End   int
}

// OperationSet is the group of changes produced by one edit or received from a peer.
type OperationSet struct {
	Changes []*automerge.Change
}

func (o OperationSet) Len() int {
	return len(o.Changes)
}

// Change is delivered to observers after the text has changed.
type Change struct {
	Text   string
	Remote bool
}

type Observer func(Change)

type subscription struct {
	id int
	fn Observer
}

type Document struct {
	mu        sync.Mutex
	doc       *automerge.Doc
	text      *automerge.Text
	observers []subscription
	nextSubID int
}

// NewActorID returns a random automerge actor id.
func NewActorID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ActorIDFor derives a stable actor id from a participant id. Automerge actor ids must be hex.
func ActorIDFor(participant string) string {
	if u, err := uuid.Parse(participant); err == nil {
		return hex.EncodeToString(u[:])
	}
	return hex.EncodeToString([]byte(participant))
}

// New creates a seeded document containing an empty text object. Only the owner of a board
// should seed it: replicas must fork or load the seeded document so they edit the same object.
func New(actorID string) (*Document, error) {
	doc := automerge.New()
	if err := doc.SetActorID(actorID); err != nil {
		return nil, fmt.Errorf("failed to set actor id: %w", err)
	}
	if err := doc.Path(TextKey).Set(automerge.NewText("")); err != nil {
		return nil, fmt.Errorf("failed to create text: %w", err)
	}
	if _, err := doc.Commit("seed", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}
	return wrap(doc)
}

// Load restores a document from a snapshot produced by Save.
func Load(raw []byte, actorID string) (*Document, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	if err := doc.SetActorID(actorID); err != nil {
		return nil, fmt.Errorf("failed to set actor id: %w", err)
	}
	return wrap(doc)
}

func wrap(doc *automerge.Doc) (*Document, error) {
	v, err := doc.Path(TextKey).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TextKey, err)
	}
	if v.Kind() != automerge.KindText {
		return nil, fmt.Errorf("document has no %s text (found %v)", TextKey, v.Kind())
	}
	return &Document{doc: doc, text: doc.Path(TextKey).Text()}, nil
}

// Fork returns an independent replica with the same history and a new actor id.
func (d *Document) Fork(actorID string) (*Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	fork, err := d.doc.Fork()
	if err != nil {
		return nil, fmt.Errorf("failed to fork: %w", err)
	}
	if err := fork.SetActorID(actorID); err != nil {
		return nil, fmt.Errorf("failed to set actor id: %w", err)
	}
	return wrap(fork)
}

// ApplyLocalEdit replaces the runes in r with newText and returns the resulting changes. The
// edit is visible in CurrentText immediately.
func (d *Document) ApplyLocalEdit(r Range, newText string) (OperationSet, error) {
	d.mu.Lock()
	if d.doc == nil {
		d.mu.Unlock()
		return OperationSet{}, ErrClosed
	}
	if length := d.text.Len(); r.Start < 0 || r.End < r.Start || r.End > length {
		d.mu.Unlock()
		return OperationSet{}, fmt.Errorf("%w: [%d, %d) of %d", ErrInvalidRange, r.Start, r.End, length)
	}
	if r.Start == r.End && newText == "" {
		d.mu.Unlock()
		return OperationSet{}, nil
	}

	before := d.doc.Heads()
	changes, text, err := d.spliceLocked(before, r, newText)
	d.mu.Unlock()
	if err != nil {
		return OperationSet{}, err
	}
	d.notify(Change{Text: text})
	return OperationSet{Changes: changes}, nil
}

func (d *Document) spliceLocked(before []automerge.ChangeHash, r Range, newText string) ([]*automerge.Change, string, error) {
	if r.End > r.Start {
		if err := d.text.Delete(r.Start, r.End-r.Start); err != nil {
			return nil, "", fmt.Errorf("failed to delete: %w", err)
		}
	}
	if newText != "" {
		if err := d.text.Insert(r.Start, newText); err != nil {
			return nil, "", fmt.Errorf("failed to insert: %w", err)
		}
	}
	if _, err := d.doc.Commit("edit"); err != nil {
		return nil, "", fmt.Errorf("failed to commit: %w", err)
	}
	changes, err := d.doc.Changes(before...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to collect changes: %w", err)
	}
	text, err := d.text.Get()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read text: %w", err)
	}
	return changes, text, nil
}

// ApplyRemoteOperations merges changes from another replica and returns the merged text.
// Changes already known are ignored, and observers are only notified when the heads moved.
func (d *Document) ApplyRemoteOperations(ops OperationSet) (string, error) {
	d.mu.Lock()
	if d.doc == nil {
		d.mu.Unlock()
		return "", ErrClosed
	}
	before := d.doc.Heads()
	if err := d.doc.Apply(ops.Changes...); err != nil {
		d.mu.Unlock()
		return "", fmt.Errorf("failed to apply changes: %w", err)
	}
	moved := !slices.Equal(before, d.doc.Heads())
	text, err := d.text.Get()
	d.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	if moved {
		d.notify(Change{Text: text, Remote: true})
	}
	return text, nil
}

// CurrentText returns the merged text, or "" once closed.
func (d *Document) CurrentText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return ""
	}
	text, _ := d.text.Get()
	return text
}

// Len returns the length of the text in runes.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return 0
	}
	return d.text.Len()
}

func (d *Document) Heads() []automerge.ChangeHash {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	return d.doc.Heads()
}

// Changes returns every change in the document history.
func (d *Document) Changes() (OperationSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return OperationSet{}, ErrClosed
	}
	changes, err := d.doc.Changes()
	if err != nil {
		return OperationSet{}, fmt.Errorf("failed to collect changes: %w", err)
	}
	return OperationSet{Changes: changes}, nil
}

// Save serializes the full document.
func (d *Document) Save() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil, ErrClosed
	}
	return d.doc.Save(), nil
}

// Subscribe registers an observer and returns a function removing it.
func (d *Document) Subscribe(fn Observer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSubID++
	id := d.nextSubID
	d.observers = append(d.observers, subscription{id: id, fn: fn})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.observers = slices.DeleteFunc(d.observers, func(s subscription) bool {
			return s.id == id
		})
	}
}

// notify must be called without holding the lock so observers may read the document.
func (d *Document) notify(c Change) {
	d.mu.Lock()
	observers := slices.Clone(d.observers)
	d.mu.Unlock()
	for _, s := range observers {
		s.fn(c)
	}
}

// Close releases the automerge document. Further calls return ErrClosed.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return ErrClosed
	}
	d.doc = nil
	d.text = nil
	d.observers = nil
	return nil
}
