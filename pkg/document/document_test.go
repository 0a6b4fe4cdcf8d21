package document

import (
	"testing"

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Document {
	t.Helper()
	d, err := New(NewActorID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func fork(t *testing.T, d *Document) *Document {
	t.Helper()
	f, err := d.Fork(NewActorID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func edit(t *testing.T, d *Document, start, end int, s string) OperationSet {
	t.Helper()
	ops, err := d.ApplyLocalEdit(Range{Start: start, End: end}, s)
	require.NoError(t, err)
	return ops
}

func TestApplyLocalEdit(t *testing.T) {
	d := seeded(t)
	assert.Equal(t, "", d.CurrentText())

	ops := edit(t, d, 0, 0, "print('hi')")
	assert.Greater(t, ops.Len(), 0)
	assert.Equal(t, "print('hi')", d.CurrentText())

	edit(t, d, 7, 9, "hello")
	assert.Equal(t, "print('hello')", d.CurrentText())

	edit(t, d, 0, 6, "")
	assert.Equal(t, "'hello')", d.CurrentText())
	assert.Equal(t, 8, d.Len())

	ops = edit(t, d, 3, 3, "")
	assert.Equal(t, 0, ops.Len())
}

func TestApplyLocalEdit_invalidRange(t *testing.T) {
	d := seeded(t)
	edit(t, d, 0, 0, "abc")
	for _, r := range []Range{{-1, 0}, {2, 1}, {0, 4}} {
		_, err := d.ApplyLocalEdit(r, "x")
		assert.ErrorIs(t, err, ErrInvalidRange)
	}
	assert.Equal(t, "abc", d.CurrentText())
}

func TestApplyLocalEdit_unicode(t *testing.T) {
	d := seeded(t)
	edit(t, d, 0, 0, "😀😀")
	assert.Equal(t, 2, d.Len())
	edit(t, d, 1, 1, "-")
	assert.Equal(t, "😀-😀", d.CurrentText())
}

func TestConvergence_permutations(t *testing.T) {
	base := seeded(t)
	edit(t, base, 0, 0, "package main\n")

	a, b, c := fork(t, base), fork(t, base), fork(t, base)
	opsA1 := edit(t, a, 0, 0, "// a\n")
	opsA2 := edit(t, a, 5, 5, "func a() {}\n")
	opsB := edit(t, b, 13, 13, "func b() {}\n")
	opsC := edit(t, c, 0, 7, "module")

	orders := [][]OperationSet{
		{opsA1, opsA2, opsB, opsC},
		{opsC, opsB, opsA2, opsA1},
		{opsB, opsA2, opsC, opsA1},
		{opsA2, opsC, opsA1, opsB},
	}
	var texts []string
	for _, order := range orders {
		replica := fork(t, base)
		for _, ops := range order {
			_, err := replica.ApplyRemoteOperations(ops)
			require.NoError(t, err)
		}
		texts = append(texts, replica.CurrentText())
	}
	for _, text := range texts[1:] {
		assert.Equal(t, texts[0], text)
	}
	assert.Contains(t, texts[0], "// a\n")
	assert.Contains(t, texts[0], "func a() {}\n")
	assert.Contains(t, texts[0], "func b() {}\n")
}

func TestApplyRemoteOperations_idempotent(t *testing.T) {
	base := seeded(t)
	a, b := fork(t, base), fork(t, base)
	ops := edit(t, a, 0, 0, "x := 1")

	calls := 0
	b.Subscribe(func(c Change) {
		calls++
		assert.True(t, c.Remote)
		assert.Equal(t, "x := 1", c.Text)
	})

	text, err := b.ApplyRemoteOperations(ops)
	require.NoError(t, err)
	assert.Equal(t, "x := 1", text)

	text, err = b.ApplyRemoteOperations(ops)
	require.NoError(t, err)
	assert.Equal(t, "x := 1", text)
	assert.Equal(t, 1, calls)
}

func TestSubscribe(t *testing.T) {
	d := seeded(t)
	var got []Change
	cancel := d.Subscribe(func(c Change) {
		got = append(got, c)
	})
	edit(t, d, 0, 0, "a")
	edit(t, d, 1, 1, "b")
	cancel()
	edit(t, d, 2, 2, "c")
	assert.Equal(t, []Change{{Text: "a"}, {Text: "ab"}}, got)
}

func TestSaveLoad(t *testing.T) {
	d := seeded(t)
	edit(t, d, 0, 0, "saved")
	raw, err := d.Save()
	require.NoError(t, err)

	loaded, err := Load(raw, NewActorID())
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, "saved", loaded.CurrentText())
	assert.Equal(t, d.Heads(), loaded.Heads())
}

func TestClose(t *testing.T) {
	d, err := New(NewActorID())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), ErrClosed)
	_, err = d.ApplyLocalEdit(Range{}, "x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.ApplyRemoteOperations(OperationSet{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.NewSyncPeer(nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "", d.CurrentText())
}

func TestActorIDFor(t *testing.T) {
	assert.Equal(t, "0123456789abcdef0123456789abcdef", ActorIDFor("01234567-89ab-cdef-0123-456789abcdef"))
	assert.Equal(t, "626f62", ActorIDFor("bob"))
	assert.Len(t, NewActorID(), 32)
}

func TestHistory(t *testing.T) {
	d := seeded(t)
	edit(t, d, 0, 0, "ab")
	edit(t, d, 2, 2, "c")

	revs, err := d.History()
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, "seed", revs[0].Message)
	assert.Equal(t, "", revs[0].Text)
	assert.Equal(t, "ab", revs[1].Text)
	assert.Equal(t, "abc", revs[2].Text)
	assert.Equal(t, []automerge.ChangeHash{revs[1].Hash}, revs[2].Dependencies)
	assert.Equal(t, revs[1].Actor, revs[2].Actor)
	assert.Equal(t, revs[1].Seq+1, revs[2].Seq)
}
