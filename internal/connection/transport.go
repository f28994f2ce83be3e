package connection

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/replication-worker/internal/version"
)

const maxLineSize = 1 << 20

// NetDialer dials TCP and WebSocket transports.
//
// Addresses of the form tcp://host:port or host:port use TCP with one
// command per '\n' terminated line. ws:// and wss:// addresses use a
// WebSocket carrying one command per text message.
type NetDialer struct {
	WriteTimeout time.Duration
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, address string) (Transport, error) {
	scheme, hostport, err := splitAddress(address)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "tcp":
		var nd net.Dialer
		conn, err := nd.DialContext(ctx, "tcp", hostport)
		if err != nil {
			return nil, err
		}
		return newTCPTransport(conn, d.WriteTimeout), nil

	case "ws", "wss":
		header := http.Header{}
		header.Set("User-Agent", version.UserAgent())
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.DialContext(ctx, address, header)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(maxLineSize)
		return newWSTransport(conn, d.WriteTimeout), nil
	}

	return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBadAddress, scheme)
}

// splitAddress returns the scheme and host:port of a replication address.
func splitAddress(address string) (scheme, hostport string, err error) {
	if address == "" {
		return "", "", fmt.Errorf("%w: empty", ErrBadAddress)
	}

	scheme, rest, ok := strings.Cut(address, "://")
	if !ok {
		scheme, rest = "tcp", address
	}
	if scheme == "tcp" {
		if _, _, err := net.SplitHostPort(rest); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrBadAddress, err)
		}
	}
	return scheme, rest, nil
}

// tcpTransport frames lines over a stream connection.
type tcpTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func newTCPTransport(conn net.Conn, writeTimeout time.Duration) *tcpTransport {
	return &tcpTransport{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 64*1024),
		writeTimeout: writeTimeout,
	}
}

func (t *tcpTransport) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := t.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("line exceeds %d bytes", maxLineSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func (t *tcpTransport) WriteLine(line []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// wsTransport carries one line per text message.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (t *wsTransport) ReadLine() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

func (t *wsTransport) WriteLine(line []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, line)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
