package pipe

import (
	"net"
	"testing"
	"time"
)

// tcpPair returns two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ln.Accept()
		ch <- result{c, err}
	}()
	dial, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	r := <-ch
	if r.err != nil {
		t.Fatalf("accept: %v", r.err)
	}
	return dial, r.conn
}

func TestJoin_BidirectionalCopy(t *testing.T) {
	left, leftPeer := tcpPair(t)
	right, rightPeer := tcpPair(t)

	done := make(chan struct{})
	var aToB, bToA int64
	go func() {
		aToB, bToA = Join(leftPeer, rightPeer)
		close(done)
	}()

	if _, err := left.Write([]byte("hello")); err != nil {
		t.Fatalf("write left: %v", err)
	}
	buf := make([]byte, 5)
	right.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(right, buf); err != nil {
		t.Fatalf("read right: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", string(buf))
	}

	if _, err := right.Write([]byte("world")); err != nil {
		t.Fatalf("write right: %v", err)
	}
	left.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(left, buf); err != nil {
		t.Fatalf("read left: %v", err)
	}
	if string(buf) != "world" {
		t.Fatalf("expected %q, got %q", "world", string(buf))
	}

	left.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Join did not return after closing one end")
	}
	if aToB != 5 || bToA != 5 {
		t.Errorf("expected 5 bytes each way, got %d/%d", aToB, bToA)
	}
}

// Closing the far side of one leg must propagate to the other leg's peer.
func TestJoin_TeardownPropagates(t *testing.T) {
	left, leftPeer := tcpPair(t)
	right, rightPeer := tcpPair(t)

	done := make(chan struct{})
	go func() {
		Join(leftPeer, rightPeer)
		close(done)
	}()

	right.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Join did not return after far-side close")
	}

	// The untouched end now observes EOF within a bounded delay.
	left.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := left.Read(make([]byte, 1)); err == nil {
		t.Error("expected read error on propagated teardown")
	}
}

func TestJoin_LargeTransferByteExact(t *testing.T) {
	left, leftPeer := tcpPair(t)
	right, rightPeer := tcpPair(t)

	go Join(leftPeer, rightPeer)

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	go func() {
		left.Write(payload)
		left.Close()
	}()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 8192)
	right.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		n, err := right.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			break
		}
	}
	if len(got) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(got))
	}
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("byte %d differs: got %d want %d", i, got[i], payload[i])
		}
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
