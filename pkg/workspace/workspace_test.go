package workspace

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/execution"
	"github.com/astromechza/codeboard/pkg/prefs"
)

type fakeRunner struct {
	got    execution.Request
	script []execution.Transition
	out    string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req execution.Request, observe execution.Observer) (string, error) {
	f.got = req
	for _, tr := range f.script {
		observe(tr)
	}
	return f.out, f.err
}

func newDoc(t *testing.T) *document.Document {
	t.Helper()
	d, err := document.New(document.NewActorID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNew_restoresPreferences(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	w, err := New(ctx, newDoc(t), &fakeRunner{}, store, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, w.Language().ID)
	assert.Equal(t, "", w.SavedInput())
	w.Close()

	require.NoError(t, store.Set(ctx, prefs.KeyLanguageID, "63"))
	require.NoError(t, store.Set(ctx, prefs.KeyInput, "console.log(1)"))
	w, err = New(ctx, newDoc(t), &fakeRunner{}, store, nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "63", w.Language().ID)
	assert.Equal(t, "javascript", w.Language().EditorMode)
	assert.Equal(t, "console.log(1)", w.SavedInput())
}

func TestEdits_arePersisted(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	doc := newDoc(t)
	w, err := New(ctx, doc, &fakeRunner{}, store, nil)
	require.NoError(t, err)

	_, err = doc.ApplyLocalEdit(document.Range{}, "print(1)")
	require.NoError(t, err)
	v, _, _ := store.Get(ctx, prefs.KeyInput)
	assert.Equal(t, "print(1)", v)

	w.Close()
	_, err = doc.ApplyLocalEdit(document.Range{Start: 0, End: 8}, "print(2)")
	require.NoError(t, err)
	v, _, _ = store.Get(ctx, prefs.KeyInput)
	assert.Equal(t, "print(1)", v)
}

func TestSetLanguage(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	w, err := New(ctx, newDoc(t), &fakeRunner{}, store, nil)
	require.NoError(t, err)
	defer w.Close()

	l, err := w.SetLanguage(ctx, "9999")
	require.NoError(t, err)
	assert.Equal(t, "plaintext", l.EditorMode)
	v, _, _ := store.Get(ctx, prefs.KeyLanguageID)
	assert.Equal(t, "9999", v)
}

func TestRun_reportsProgress(t *testing.T) {
	ctx := context.Background()
	doc := newDoc(t)
	_, err := doc.ApplyLocalEdit(document.Range{}, "print(input())")
	require.NoError(t, err)

	runner := &fakeRunner{
		script: []execution.Transition{
			{From: execution.Idle, To: execution.Submitting},
			{From: execution.Submitting, To: execution.Queued},
			{From: execution.Queued, To: execution.Queued, Job: execution.Job{Description: "In Queue"}},
			{From: execution.Queued, To: execution.Processing, Job: execution.Job{Description: "Processing"}},
			{From: execution.Processing, To: execution.Accepted, Job: execution.Job{Description: "Accepted"}},
			{From: execution.Accepted, To: execution.Idle},
		},
		out: "Results :\nhi\nExecution Time : 0.1 Secs\nMemory used : 1 bytes",
	}
	w, err := New(ctx, doc, runner, prefs.NewMemory(), nil)
	require.NoError(t, err)
	defer w.Close()
	w.HandleStdin(StdinEvent{Text: "hi"})

	var lines []string
	out := w.Run(ctx, func(s string) { lines = append(lines, s) })
	assert.Equal(t, runner.out, out)
	assert.Equal(t, execution.Request{SourceText: "print(input())", StdinText: "hi", LanguageID: DefaultLanguage}, runner.got)
	assert.Equal(t, []string{
		"Creating Submission ...",
		"Creating Submission ...\nSubmission Created ...",
		"Creating Submission ...\nSubmission Created ...\nChecking Submission Status\nstatus : In Queue",
		"Creating Submission ...\nSubmission Created ...\nChecking Submission Status\nstatus : Processing",
	}, lines)
}

func TestRun_rendersErrors(t *testing.T) {
	w, err := New(context.Background(), newDoc(t), &fakeRunner{err: execution.ErrUnknownOutcome}, prefs.NewMemory(), nil)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "Error: Unknown error occurred.", w.Run(context.Background(), nil))

	w.runner = &fakeRunner{err: fmt.Errorf("render: %w", execution.ErrUnknownOutcome)}
	assert.Equal(t, "Error: Unknown error occurred.", w.Run(context.Background(), nil))

	w.runner = &fakeRunner{err: execution.ErrPollTimeout}
	assert.Equal(t, "Error: "+execution.ErrPollTimeout.Error(), w.Run(context.Background(), nil))
}
