package protocol

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketConn reads and writes frames as binary websocket messages. Writes are serialized
// because a gorilla connection supports only one concurrent writer.
type WebsocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{conn: conn}
}

// ReadFrame blocks until the next binary message arrives. Other message types are skipped.
func (c *WebsocketConn) ReadFrame() (Frame, error) {
	for {
		mt, p, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return Decode(p)
	}
}

func (c *WebsocketConn) WriteFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, Encode(f)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *WebsocketConn) Close() error {
	return c.conn.Close()
}
