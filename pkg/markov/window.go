package markov

import "strconv"

// Window is a fixed-length run of raw bytes used as the state of a chain.
// It is backed by a string so it can be compared with == and used directly as
// a map key. A Window never changes once created.
type Window string

// NewWindow copies b into a new Window.
func NewWindow(b []byte) Window {
	return Window(b)
}

// Len returns the number of bytes in the window.
func (w Window) Len() int {
	return len(w)
}

// Bytes returns a copy of the window's contents.
func (w Window) Bytes() []byte {
	return []byte(w)
}

// Slide returns the window that follows w once b has been emitted: the first
// byte is dropped and b is appended.
func (w Window) Slide(b byte) Window {
	if len(w) == 0 {
		return w
	}
	buf := make([]byte, len(w))
	copy(buf, w[1:])
	buf[len(buf)-1] = b
	return Window(buf)
}

// String returns the window as a Go-quoted string, which keeps control and
// non-UTF-8 bytes readable in logs.
func (w Window) String() string {
	return strconv.Quote(string(w))
}
