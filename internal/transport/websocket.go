package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn is a websocket client connection carrying the same line protocol:
// one text frame per line in both directions. It serves as a Source for the
// bridge and a LineWriter for the sink. A read failure means the peer is
// gone, which the bridge treats as end of stream.
type WSConn struct {
	conn *websocket.Conn

	// Writes come from every role goroutine; gorilla allows one writer at
	// a time.
	writeMu sync.Mutex
}

// DialWS connects to the operator UI endpoint.
func DialWS(ctx context.Context, url string) (*WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &WSConn{conn: conn}, nil
}

func (w *WSConn) ReadLine() ([]byte, error) {
	_, message, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (w *WSConn) WriteLine(line []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, line)
}

func (w *WSConn) Close() error {
	return w.conn.Close()
}
