package keys

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, r *Reader) []rune {
	t.Helper()
	var out []rune
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ch, ok := <-r.Keys():
			if !ok {
				return out
			}
			out = append(out, ch)
		case <-timeout:
			t.Fatalf("timed out reading keys, got %q so far", string(out))
		}
	}
}

func TestReaderDeliversRunesInOrder(t *testing.T) {
	r := NewReader(strings.NewReader("xqQé"))
	defer r.Close()

	got := collect(t, r)
	if string(got) != "xqQé" {
		t.Fatalf("unexpected keys %q", string(got))
	}
}

func TestReaderSkipsInvalidBytes(t *testing.T) {
	r := NewReader(strings.NewReader("a\xffb"))
	defer r.Close()

	if got := string(collect(t, r)); got != "ab" {
		t.Fatalf("unexpected keys %q", got)
	}
}

func TestOpenOnPipeReadsWithoutRawMode(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pr.Close()

	r, err := Open(pr)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := io.WriteString(pw, "q"); err != nil {
		t.Fatalf("write: %v", err)
	}
	pw.Close()

	if got := string(collect(t, r)); got != "q" {
		t.Fatalf("unexpected keys %q", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenRejectsNilFile(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Fatalf("expected error for nil input")
	}
}
