package tcpserver

import (
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewServer_DefaultLocalhostAddress(t *testing.T) {
	t.Parallel()

	s := NewServer("")
	if got := s.Addr(); got != DefaultAddr {
		t.Fatalf("Addr() = %q, want %q", got, DefaultAddr)
	}
}

func TestNewServer_UsesConfiguredAddressAndBuffers(t *testing.T) {
	t.Parallel()

	s := NewServer("0.0.0.0:5000", ServerConfig{
		LineChannelSize: 64,
		MaxLineSize:     2048,
	})

	if got := s.Addr(); got != "0.0.0.0:5000" {
		t.Fatalf("Addr() = %q, want %q", got, "0.0.0.0:5000")
	}
	if got := cap(s.lineChan); got != 64 {
		t.Fatalf("line channel cap = %d, want %d", got, 64)
	}
	if got := s.maxLineSize; got != 2048 {
		t.Fatalf("max line size = %d, want %d", got, 2048)
	}
}

func TestServer_ReceivesLines(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", ServerConfig{Logger: zap.NewNop()})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if _, err := conn.Write([]byte("first\n\nsecond\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case env := <-s.Lines():
			if env.Source != SourceName {
				t.Errorf("source = %q, want %q", env.Source, SourceName)
			}
			if env.Remote != conn.LocalAddr().String() {
				t.Errorf("remote = %q, want %q", env.Remote, conn.LocalAddr().String())
			}
			got = append(got, env.Line)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if strings.Join(got, ",") != "first,second" {
		t.Fatalf("lines = %v", got)
	}

	// Stop must not hang on the still-open client connection.
	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	conn.Close()

	if _, ok := <-s.Lines(); ok {
		t.Fatal("line channel should be closed after Stop")
	}
}
