package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/codeboard/pkg/presence"
)

func TestEncodeDecode_sync(t *testing.T) {
	f, err := Decode(Encode(SyncFrame([]byte{0x42, 0x01})))
	require.NoError(t, err)
	assert.Equal(t, KindSync, f.Kind)
	assert.Equal(t, []byte{0x42, 0x01}, f.Payload)
}

func TestEncodeDecode_presence(t *testing.T) {
	u := presence.Update{
		ParticipantID: "p1",
		Seq:           3,
		Metadata:      &presence.Metadata{Name: "ada", Color: "#ff0000", Cursor: 4},
	}
	f, err := PresenceFrame(u)
	require.NoError(t, err)
	decoded, err := Decode(Encode(f))
	require.NoError(t, err)
	got, err := decoded.Presence()
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = SyncFrame(nil).Presence()
	assert.Error(t, err)
}

func TestDecode_errors(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = Decode([]byte{9, 1, 2})
	assert.ErrorIs(t, err, ErrUnknownFrame)
	assert.Equal(t, "kind(9)", Kind(9).String())
}
