// Package filesync mirrors a board document to a file on disk so it can be edited with any
// local editor.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/astromechza/codeboard/pkg/document"
)

type Binding struct {
	doc         *document.Document
	path        string
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	unsubscribe func()

	mu       sync.Mutex
	onDisk   string
	applying bool
}

// Bind writes the current document text to path and keeps the two in step: merged changes are
// written to the file and edits to the file are applied to the document once Run is called.
func Bind(doc *document.Document, path string, logger *slog.Logger) (*Binding, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	b := &Binding{
		doc:     doc,
		path:    abs,
		logger:  logger.With("file", abs),
		watcher: watcher,
		onDisk:  doc.CurrentText(),
	}
	if err := os.WriteFile(abs, []byte(b.onDisk), 0o644); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	// the directory is watched so editors that replace the file on save are still seen
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	b.unsubscribe = doc.Subscribe(func(c document.Change) {
		b.mu.Lock()
		applying := b.applying
		b.mu.Unlock()
		// our own file edits are already on disk
		if applying && !c.Remote {
			return
		}
		if err := b.write(c.Text); err != nil {
			b.logger.Warn("failed to write merged text", "err", err)
		}
	})
	return b, nil
}

func (b *Binding) Path() string {
	return b.path
}

func (b *Binding) write(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if text == b.onDisk {
		return nil
	}
	if err := os.WriteFile(b.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	b.onDisk = text
	return nil
}

// debounce lets an editor finish writing before the file is read.
const debounce = 50 * time.Millisecond

// Run applies changes made to the file until ctx is done or the watcher fails.
func (b *Binding) Run(ctx context.Context) error {
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			pending = nil
			if err := b.reload(); err != nil {
				b.logger.Error("failed to apply file change", "err", err)
			}
		case event, ok := <-b.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != b.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(debounce)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.Error("file watcher error", "err", err)
		}
	}
}

func (b *Binding) reload() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	text := string(raw)

	b.mu.Lock()
	if text == b.onDisk {
		b.mu.Unlock()
		return nil
	}
	b.onDisk = text
	b.applying = true
	b.mu.Unlock()

	edits := Diff(b.doc.CurrentText(), text)
	var applyErr error
	for i := len(edits) - 1; i >= 0; i-- {
		if _, applyErr = b.doc.ApplyLocalEdit(edits[i].Range, edits[i].Text); applyErr != nil {
			break
		}
	}

	b.mu.Lock()
	b.applying = false
	b.mu.Unlock()
	// merges that landed while the edits were applied must still reach the file
	if err := b.write(b.doc.CurrentText()); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}
	b.logger.Debug("applied file change", "edits", len(edits))
	return nil
}

func (b *Binding) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	return b.watcher.Close()
}
