// Package keys delivers single keystrokes from the controlling terminal.
package keys

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"
)

// Reader turns an input stream into a channel of runes.
type Reader struct {
	keys chan rune
	done chan struct{}

	restoreOnce sync.Once
	restore     func() error
}

// Open switches f into key-at-a-time mode when it is a terminal and starts
// reading keystrokes from it. Input that is not a terminal is read as-is.
func Open(f *os.File) (*Reader, error) {
	if f == nil {
		return nil, errors.New("keys: nil input")
	}

	restore := func() error { return nil }
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		var err error
		restore, err = enableKeyMode(fd)
		if err != nil {
			return nil, err
		}
	} else {
		slog.With("component", "keys").Debug("input is not a terminal; reading without raw mode")
	}

	r := newReader(f)
	r.restore = restore
	return r, nil
}

// NewReader reads keystrokes from an arbitrary stream without touching
// terminal state.
func NewReader(in io.Reader) *Reader {
	return newReader(in)
}

func newReader(in io.Reader) *Reader {
	r := &Reader{
		keys:    make(chan rune, 16),
		done:    make(chan struct{}),
		restore: func() error { return nil },
	}
	go r.read(in)
	return r
}

// Keys returns the keystroke channel. It is closed when the input reaches EOF
// or the Reader is closed.
func (r *Reader) Keys() <-chan rune {
	return r.keys
}

// Close restores the terminal state. Keystrokes pending on the underlying
// input are abandoned.
func (r *Reader) Close() error {
	var err error
	r.restoreOnce.Do(func() {
		close(r.done)
		err = r.restore()
	})
	return err
}

func (r *Reader) read(in io.Reader) {
	defer close(r.keys)
	br := bufio.NewReader(in)
	for {
		ch, size, err := br.ReadRune()
		if err != nil {
			return
		}
		if ch == utf8.RuneError && size == 1 {
			continue
		}
		select {
		case r.keys <- ch:
		case <-r.done:
			return
		}
	}
}
