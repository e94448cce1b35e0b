package main

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/matst80/warppipe/internal/proto"
)

func testConfig(relayAddr, target string) Config {
	return Config{
		RelayAddr:         relayAddr,
		Target:            target,
		HeartbeatInterval: 50 * time.Millisecond,
		AckWindow:         200 * time.Millisecond,
		Backoff:           50 * time.Millisecond,
		DialTimeout:       time.Second,
	}
}

// acceptControl waits for the forwarder's control connection and verifies
// its hello frame.
func acceptControl(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	ln.(*net.TCPListener).SetDeadline(time.Now().Add(3 * time.Second))
	c, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept control: %v", err)
	}
	f, err := proto.Read(c)
	if err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if f.Kind != proto.KindControlHello || string(f.Payload) != proto.ControlMagic {
		t.Fatalf("unexpected hello %v %q", f.Kind, f.Payload)
	}
	return c
}

func TestRunControl_HeartbeatTimeoutForcesReconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- runControl(context.Background(), testConfig(ln.Addr().String(), "127.0.0.1:1")) }()

	ctrl := acceptControl(t, ln)
	defer ctrl.Close()
	// Swallow heartbeats without ever acking.
	go io.Copy(io.Discard, ctrl)

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "heartbeat ack") {
			t.Errorf("expected heartbeat ack timeout, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runControl did not give up on unacked heartbeats")
	}
}

func TestRunControl_AckedHeartbeatsKeepChannelAlive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- runControl(context.Background(), testConfig(ln.Addr().String(), "127.0.0.1:1")) }()

	ctrl := acceptControl(t, ln)
	defer ctrl.Close()
	go func() {
		for {
			f, err := proto.Read(ctrl)
			if err != nil {
				return
			}
			if f.Kind == proto.KindHeartbeat {
				proto.Write(ctrl, proto.HeartbeatAck())
			}
		}
	}()

	// Several heartbeat intervals pass without the channel dying.
	select {
	case err := <-errCh:
		t.Fatalf("control channel ended early: %v", err)
	case <-time.After(500 * time.Millisecond):
	}

	// Relay going away surfaces as a read error.
	ctrl.Close()
	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error after relay closed the channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runControl did not notice the closed channel")
	}
}

func TestRunControl_NewSessionOpensDataAndLocal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	game, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen game: %v", err)
	}
	defer game.Close()

	cfg := testConfig(ln.Addr().String(), game.Addr().String())
	cfg.HeartbeatInterval = time.Hour // keep heartbeats out of this test
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runControl(ctx, cfg)

	ctrl := acceptControl(t, ln)
	defer ctrl.Close()

	const id = "00aa11bb22cc33dd"
	if err := proto.Write(ctrl, proto.NewSession(id)); err != nil {
		t.Fatalf("send new session: %v", err)
	}

	// The forwarder dials back with a DataHello carrying the id.
	ln.(*net.TCPListener).SetDeadline(time.Now().Add(3 * time.Second))
	data, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept data conn: %v", err)
	}
	defer data.Close()
	f, err := proto.Read(data)
	if err != nil {
		t.Fatalf("read data hello: %v", err)
	}
	if f.Kind != proto.KindDataHello || string(f.Payload) != id {
		t.Fatalf("unexpected data hello %v %q", f.Kind, f.Payload)
	}

	// And it dials the local game server; bytes flow both ways.
	game.(*net.TCPListener).SetDeadline(time.Now().Add(3 * time.Second))
	local, err := game.Accept()
	if err != nil {
		t.Fatalf("accept game conn: %v", err)
	}
	defer local.Close()

	if _, err := data.Write([]byte("hello")); err != nil {
		t.Fatalf("write to data conn: %v", err)
	}
	buf := make([]byte, 5)
	local.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(local, buf); err != nil {
		t.Fatalf("game read: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("expected %q at game server, got %q", "hello", string(buf))
	}

	if _, err := local.Write([]byte("reply")); err != nil {
		t.Fatalf("game write: %v", err)
	}
	data.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(data, buf); err != nil {
		t.Fatalf("data read: %v", err)
	}
	if string(buf) != "reply" {
		t.Errorf("expected %q on data conn, got %q", "reply", string(buf))
	}
}

func TestOpenSession_LocalDialFailureClosesData(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Reserve a port and close it so the target dial fails fast.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen dead: %v", err)
	}
	deadAddr := dead.Addr().String()
	dead.Close()

	cfg := testConfig(ln.Addr().String(), deadAddr)
	go openSession("00aa11bb22cc33dd", cfg)

	ln.(*net.TCPListener).SetDeadline(time.Now().Add(3 * time.Second))
	data, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept data conn: %v", err)
	}
	defer data.Close()
	if _, err := proto.Read(data); err != nil {
		t.Fatalf("read data hello: %v", err)
	}

	// With the local leg unreachable the data conn is abandoned.
	data.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := data.Read(make([]byte, 1)); err == nil {
		t.Error("expected data conn closed after local dial failure")
	}
}

func TestRunControl_CancelledContextReturns(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runControl(ctx, testConfig(ln.Addr().String(), "127.0.0.1:1")) }()

	ctrl := acceptControl(t, ln)
	defer ctrl.Close()

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("runControl did not return on context cancellation")
	}
}
