// Package protocol frames the two streams multiplexed over one board connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/astromechza/codeboard/pkg/presence"
)

type Kind byte

const (
	// KindSync carries one automerge sync message.
	KindSync Kind = 1
	// KindPresence carries one JSON encoded presence.Update.
	KindPresence Kind = 2
)

var (
	ErrShortFrame   = errors.New("frame is empty")
	ErrUnknownFrame = errors.New("unknown frame kind")
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindPresence:
		return "presence"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

type Frame struct {
	Kind    Kind
	Payload []byte
}

func SyncFrame(msg []byte) Frame {
	return Frame{Kind: KindSync, Payload: msg}
}

func PresenceFrame(u presence.Update) (Frame, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode presence: %w", err)
	}
	return Frame{Kind: KindPresence, Payload: raw}, nil
}

// Presence decodes the payload of a presence frame.
func (f Frame) Presence() (presence.Update, error) {
	var u presence.Update
	if f.Kind != KindPresence {
		return u, fmt.Errorf("not a presence frame: %s", f.Kind)
	}
	if err := json.Unmarshal(f.Payload, &u); err != nil {
		return u, fmt.Errorf("failed to decode presence: %w", err)
	}
	return u, nil
}

// Encode lays out the frame as a single websocket binary message.
func Encode(f Frame) []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = byte(f.Kind)
	copy(out[1:], f.Payload)
	return out
}

func Decode(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrShortFrame
	}
	k := Kind(raw[0])
	switch k {
	case KindSync, KindPresence:
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownFrame, raw[0])
	}
	return Frame{Kind: k, Payload: raw[1:]}, nil
}
