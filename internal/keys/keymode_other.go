//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package keys

import (
	"fmt"

	"golang.org/x/term"
)

func enableKeyMode(fd int) (func() error, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, state) }, nil
}
