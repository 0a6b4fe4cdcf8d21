// Package workspace ties one board document to code execution and the user's saved settings.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/execution"
	"github.com/astromechza/codeboard/pkg/languages"
	"github.com/astromechza/codeboard/pkg/prefs"
)

// DefaultLanguage is Python 3.8.1.
const DefaultLanguage = "71"

type Runner interface {
	Run(ctx context.Context, req execution.Request, observe execution.Observer) (string, error)
}

// EditEvent carries the full editor text after a change.
type EditEvent struct {
	Text string
}

// StdinEvent carries the full program input after a change.
type StdinEvent struct {
	Text string
}

type Workspace struct {
	doc    *document.Document
	runner Runner
	prefs  prefs.Store
	logger *slog.Logger
	unbind func()

	mu         sync.Mutex
	languageID string
	stdin      string
	savedInput string
}

// New restores the language and last edited input from store and starts persisting document
// edits to it.
func New(ctx context.Context, doc *document.Document, runner Runner, store prefs.Store, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workspace{
		doc:        doc,
		runner:     runner,
		prefs:      store,
		logger:     logger,
		languageID: DefaultLanguage,
	}
	lang, ok, err := store.Get(ctx, prefs.KeyLanguageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read language preference: %w", err)
	} else if ok && lang != "" {
		w.languageID = lang
	}
	input, _, err := store.Get(ctx, prefs.KeyInput)
	if err != nil {
		return nil, fmt.Errorf("failed to read input preference: %w", err)
	}
	w.savedInput = input

	w.unbind = doc.Subscribe(func(c document.Change) {
		if err := w.HandleEdit(context.Background(), EditEvent{Text: c.Text}); err != nil {
			w.logger.Warn("failed to save input", "err", err)
		}
	})
	return w, nil
}

// SavedInput is the editor text persisted by a previous run of the client.
func (w *Workspace) SavedInput() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.savedInput
}

func (w *Workspace) HandleEdit(ctx context.Context, ev EditEvent) error {
	w.mu.Lock()
	w.savedInput = ev.Text
	w.mu.Unlock()
	return w.prefs.Set(ctx, prefs.KeyInput, ev.Text)
}

func (w *Workspace) HandleStdin(ev StdinEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stdin = ev.Text
}

func (w *Workspace) Stdin() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stdin
}

func (w *Workspace) Language() languages.Language {
	w.mu.Lock()
	defer w.mu.Unlock()
	return languages.Lookup(w.languageID)
}

// SetLanguage selects the language used for the next run and persists the choice. Unknown ids
// are accepted and run as-is; they only lose syntax highlighting.
func (w *Workspace) SetLanguage(ctx context.Context, id string) (languages.Language, error) {
	if err := w.prefs.Set(ctx, prefs.KeyLanguageID, id); err != nil {
		return languages.Lookup(id), err
	}
	w.mu.Lock()
	w.languageID = id
	w.mu.Unlock()
	w.logger.Info("language changed", "id", id, "mode", languages.Mode(id))
	return languages.Lookup(id), nil
}

// Run executes a snapshot of the document and returns the text to show the user. progress
// receives the cumulative status text while the run is in flight and may be nil.
func (w *Workspace) Run(ctx context.Context, progress func(string)) string {
	if progress == nil {
		progress = func(string) {}
	}
	w.mu.Lock()
	req := execution.Request{
		SourceText: w.doc.CurrentText(),
		StdinText:  w.stdin,
		LanguageID: w.languageID,
	}
	w.mu.Unlock()

	const (
		creating = "Creating Submission ..."
		created  = creating + "\nSubmission Created ..."
	)
	progress(creating)
	out, err := w.runner.Run(ctx, req, func(tr execution.Transition) {
		switch {
		case tr.From == execution.Submitting && !tr.To.Terminal():
			progress(created)
		case tr.To == execution.Queued || tr.To == execution.Processing:
			status := tr.Job.Description
			if status == "" {
				status = tr.To.String()
			}
			progress(created + "\nChecking Submission Status\nstatus : " + status)
		}
	})
	if errors.Is(err, execution.ErrUnknownOutcome) {
		return "Error: Unknown error occurred."
	} else if err != nil {
		w.logger.Info("run failed", "language", req.LanguageID, "err", err)
		return "Error: " + err.Error()
	}
	return out
}

// Close stops persisting document edits.
func (w *Workspace) Close() {
	if w.unbind != nil {
		w.unbind()
		w.unbind = nil
	}
}
