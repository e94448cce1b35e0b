// Package pipe moves raw bytes between two connected sockets. The relay
// never interprets the stream; a broken direction tears the whole pair down.
package pipe

import (
	"io"
	"net"
	"sync"
)

const copyBufSize = 4 * 1024

// Join copies bytes between a and b in both directions until either side
// returns EOF or an error, then closes both connections. It blocks until
// both directions have finished and returns the bytes moved a->b and b->a.
func Join(a, b net.Conn) (aToB, bToA int64) {
	var wg sync.WaitGroup
	var once sync.Once
	closeBoth := func() { _ = a.Close(); _ = b.Close() }

	copyDir := func(dst, src net.Conn, n *int64) {
		defer wg.Done()
		buf := make([]byte, copyBufSize)
		*n, _ = io.CopyBuffer(dst, src, buf)
		// First direction to exit kills the counterpart's blocked read.
		once.Do(closeBoth)
	}

	wg.Add(2)
	go copyDir(b, a, &aToB)
	copyDir(a, b, &bToA)
	wg.Wait()
	return aToB, bToA
}
