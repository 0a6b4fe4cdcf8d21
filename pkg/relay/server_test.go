package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/codeboard/pkg/document"
	"github.com/astromechza/codeboard/pkg/presence"
	"github.com/astromechza/codeboard/pkg/protocol"
	"github.com/astromechza/codeboard/pkg/store"
)

func startServer(t *testing.T, st store.Store) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(st, Options{FlushInterval: 20 * time.Millisecond})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func fetchLatest(t *testing.T, srv *httptest.Server, board string) *document.Document {
	t.Helper()
	resp, err := http.Get(srv.URL + "/boards/" + board + "/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	doc, err := document.Load(raw, document.NewActorID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return doc
}

func dialSync(t *testing.T, srv *httptest.Server, board, participant string) *protocol.WebsocketConn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/boards/" + board + "/sync?participant=" + participant
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	c := protocol.NewWebsocketConn(conn)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func boardText(s *Server, id string) string {
	s.mu.Lock()
	b, ok := s.boards[id]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	return b.doc.CurrentText()
}

// nextPresence reads frames until a presence frame arrives.
func nextPresence(t *testing.T, c *protocol.WebsocketConn) presence.Update {
	t.Helper()
	for {
		f, err := c.ReadFrame()
		require.NoError(t, err)
		if f.Kind == protocol.KindPresence {
			u, err := f.Presence()
			require.NoError(t, err)
			return u
		}
	}
}

func TestLatest_seedsBoard(t *testing.T) {
	st := store.NewMemory()
	s, srv := startServer(t, st)

	doc := fetchLatest(t, srv, "fresh")
	assert.Equal(t, "", doc.CurrentText())

	require.NoError(t, s.Backup(context.Background()))
	_, err := st.Load(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestLatest_loadsFromStore(t *testing.T) {
	seed, err := document.New(document.NewActorID())
	require.NoError(t, err)
	_, err = seed.ApplyLocalEdit(document.Range{}, "stored text")
	require.NoError(t, err)
	raw, err := seed.Save()
	require.NoError(t, err)

	st := store.NewMemory()
	require.NoError(t, st.Save(context.Background(), "old", raw))
	_, srv := startServer(t, st)
	assert.Equal(t, "stored text", fetchLatest(t, srv, "old").CurrentText())
}

func TestSync_requiresParticipant(t *testing.T) {
	_, srv := startServer(t, store.NewMemory())
	resp, err := http.Get(srv.URL + "/boards/b/sync")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	_, srv := startServer(t, store.NewMemory())
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSync_mergesIntoBoard(t *testing.T) {
	st := store.NewMemory()
	s, srv := startServer(t, st)
	local := fetchLatest(t, srv, "shared")
	_, err := local.ApplyLocalEdit(document.Range{}, "from client")
	require.NoError(t, err)

	conn := dialSync(t, srv, "shared", "alice")
	peer, err := local.NewSyncPeer(nil)
	require.NoError(t, err)

	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				return
			}
			if f.Kind == protocol.KindSync {
				_ = peer.ReceiveMessage(f.Payload)
			}
		}
	}()
	assert.Eventually(t, func() bool {
		for {
			msg, ok := peer.GenerateMessage()
			if !ok {
				break
			}
			if conn.WriteFrame(protocol.SyncFrame(msg)) != nil {
				return false
			}
		}
		return boardText(s, "shared") == "from client"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Close(context.Background()))
	raw, err := st.Load(context.Background(), "shared")
	require.NoError(t, err)
	saved, err := document.Load(raw, document.NewActorID())
	require.NoError(t, err)
	assert.Equal(t, "from client", saved.CurrentText())
}

func TestSync_relaysPresence(t *testing.T) {
	_, srv := startServer(t, store.NewMemory())
	alice := dialSync(t, srv, "room", "alice")
	bob := dialSync(t, srv, "room", "bob")

	f, err := protocol.PresenceFrame(presence.Update{
		ParticipantID: "spoofed",
		Seq:           1,
		Metadata:      &presence.Metadata{Name: "Alice", Cursor: 7},
	})
	require.NoError(t, err)
	require.NoError(t, alice.WriteFrame(f))

	u := nextPresence(t, bob)
	assert.Equal(t, "alice", u.ParticipantID)
	assert.Equal(t, 7, u.Metadata.Cursor)

	carol := dialSync(t, srv, "room", "carol")
	u = nextPresence(t, carol)
	assert.Equal(t, "alice", u.ParticipantID)

	require.NoError(t, alice.Close())
	u = nextPresence(t, bob)
	assert.Equal(t, "alice", u.ParticipantID)
	assert.Nil(t, u.Metadata)
	assert.Equal(t, uint64(2), u.Seq)
}

func TestRange(t *testing.T) {
	s, srv := startServer(t, store.NewMemory())
	fetchLatest(t, srv, "a")
	fetchLatest(t, srv, "b")

	seen := map[string]bool{}
	s.Range(func(id string, doc *document.Document) bool {
		seen[id] = doc.CurrentText() == ""
		return true
	})
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}

// slowStore blocks loads of one board until release is closed.
type slowStore struct {
	store.Store
	slow    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) Load(ctx context.Context, boardID string) ([]byte, error) {
	if boardID == s.slow {
		s.once.Do(func() { close(s.started) })
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Store.Load(ctx, boardID)
}

func TestLatest_slowLoadDoesNotBlockOtherBoards(t *testing.T) {
	st := &slowStore{Store: store.NewMemory(), slow: "slow", started: make(chan struct{}), release: make(chan struct{})}
	s, srv := startServer(t, st)

	loaded := make(chan *board, 1)
	go func() {
		b, err := s.board(context.Background(), "slow")
		assert.NoError(t, err)
		loaded <- b
	}()
	<-st.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get(srv.URL + "/boards/fast/latest")
		if assert.NoError(t, err) {
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("board fast waited for the load of board slow")
	}

	close(st.release)
	first := <-loaded
	again, err := s.board(context.Background(), "slow")
	require.NoError(t, err)
	assert.Same(t, first, again)
}
