package connection

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		address    string
		wantScheme string
		wantHost   string
		wantErr    bool
	}{
		{address: "127.0.0.1:9092", wantScheme: "tcp", wantHost: "127.0.0.1:9092"},
		{address: "tcp://master:9092", wantScheme: "tcp", wantHost: "master:9092"},
		{address: "ws://master:8080/replication", wantScheme: "ws", wantHost: "master:8080/replication"},
		{address: "wss://master/replication", wantScheme: "wss", wantHost: "master/replication"},
		{address: "master", wantErr: true},
		{address: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			scheme, host, err := splitAddress(tt.address)
			if tt.wantErr {
				if !errors.Is(err, ErrBadAddress) {
					t.Errorf("splitAddress() error = %v, want ErrBadAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("splitAddress() error: %v", err)
			}
			if scheme != tt.wantScheme || host != tt.wantHost {
				t.Errorf("splitAddress() = %q, %q, want %q, %q", scheme, host, tt.wantScheme, tt.wantHost)
			}
		})
	}
}

func TestNetDialer_UnsupportedScheme(t *testing.T) {
	d := &NetDialer{}
	if _, err := d.Dial(context.Background(), "udp://master:9092"); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Dial() error = %v, want ErrBadAddress", err)
	}
}

func TestTCPTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("SERVER master.example.org\r\nPOSITION events master 5\n"))

		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	d := &NetDialer{WriteTimeout: time.Second}
	tr, err := d.Dial(context.Background(), "tcp://"+ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer tr.Close()

	for _, want := range []string{"SERVER master.example.org", "POSITION events master 5"} {
		line, err := tr.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() error: %v", err)
		}
		if string(line) != want {
			t.Errorf("ReadLine() = %q, want %q", line, want)
		}
	}

	if err := tr.WriteLine([]byte("NAME worker1")); err != nil {
		t.Fatalf("WriteLine() error: %v", err)
	}
	select {
	case got := <-received:
		if got != "NAME worker1\n" {
			t.Errorf("server received %q, want %q", got, "NAME worker1\n")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
	}

	if tr.RemoteAddr() != ln.Addr().String() {
		t.Errorf("RemoteAddr() = %q, want %q", tr.RemoteAddr(), ln.Addr().String())
	}
}

func TestWSTransport(t *testing.T) {
	received := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("SERVER master.example.org"))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.ReadMessage()
	})
	defer server.Close()

	d := &NetDialer{WriteTimeout: time.Second}
	tr, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	line, err := tr.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine() error: %v", err)
	}
	if string(line) != "SERVER master.example.org" {
		t.Errorf("ReadLine() = %q", line)
	}

	if err := tr.WriteLine([]byte("REPLICATE")); err != nil {
		t.Fatalf("WriteLine() error: %v", err)
	}
	select {
	case got := <-received:
		if got != "REPLICATE" {
			t.Errorf("server received %q, want REPLICATE", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
	}

	if err := tr.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if _, err := tr.ReadLine(); err == nil {
		t.Error("ReadLine() after Close() should fail")
	}
}
