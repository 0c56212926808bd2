package logsource

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestStdinSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestStdinSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()
	src.Stop()
}

func TestStdinSourceReadsLinesUntilEOF(t *testing.T) {
	src := newStdinSourceWithReader(context.Background(), strings.NewReader("one\n\ntwo\n"))

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-src.Lines():
			if !ok {
				if strings.Join(got, ",") != "one,two" {
					t.Fatalf("lines = %v, want [one two]", got)
				}
				return
			}
			if env.Source != "stdin" {
				t.Fatalf("source = %q, want stdin", env.Source)
			}
			got = append(got, env.Line)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
}
