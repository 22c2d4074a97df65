//go:build linux || darwin || freebsd || netbsd || openbsd || solaris || dragonfly
// +build linux darwin freebsd netbsd openbsd solaris dragonfly

package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"unsafe"
)

var (
	tty     *os.File
	ttyOnce sync.Once
)

// The controlling terminal, or Stderr when there isn't one. Stdout carries
// results so it is never used for measuring.
func terminal() *os.File {
	ttyOnce.Do(func() {
		var err error
		if tty, err = os.Open("/dev/tty"); err != nil {
			tty = os.Stderr
		}
	})
	return tty
}

type window struct {
	Row    uint16
	Col    uint16
	Xpixel uint16
	Ypixel uint16
}

func windowOf(f *os.File) (*window, error) {
	w := new(window)
	returnCode, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		f.Fd(),
		uintptr(syscall.TIOCGWINSZ),
		uintptr(unsafe.Pointer(w)),
	)

	if int(returnCode) == -1 {
		return nil, errno
	}
	return w, nil
}

// TerminalWidth returns the number of columns of the terminal
func TerminalWidth() (int, error) {
	w, err := windowOf(terminal())
	if err != nil {
		return 0, err
	}
	return int(w.Col), nil
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	_, err := windowOf(f)
	return err == nil
}

// ClearTerminal wipes the screen when out is a terminal and does nothing
// otherwise
func ClearTerminal(out io.Writer) {
	if f, ok := out.(*os.File); ok && IsTerminal(f) {
		_, _ = fmt.Fprint(f, "\033[H\033[2J")
	}
}
