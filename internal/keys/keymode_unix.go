//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package keys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// enableKeyMode turns off line buffering and echo on the terminal at fd.
// Output processing and signal keys stay enabled, so children sharing the
// terminal keep printing normal lines and Ctrl-C still interrupts.
func enableKeyMode(fd int) (func() error, error) {
	termios, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, fmt.Errorf("read terminal state: %w", err)
	}
	saved := *termios

	termios.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.INPCK | unix.ISTRIP
	termios.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN
	termios.Cflag |= unix.CS8
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, termios); err != nil {
		return nil, fmt.Errorf("set terminal state: %w", err)
	}

	return func() error {
		return unix.IoctlSetTermios(fd, ioctlWriteTermios, &saved)
	}, nil
}
