package console

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestRelayForwardsBytesBothWays(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		io.ReadFull(conn, buf)
		conn.Write([]byte("world"))
	}()

	clientSide, relaySide := net.Pipe()
	tk := &Ticket{Network: "tcp", Address: ln.Addr().String(), ExpiresAt: time.Now().Add(time.Second)}

	relayErr := make(chan error, 1)
	go func() { relayErr <- Relay(context.Background(), tk, relaySide) }()

	if _, err := clientSide.Write([]byte("hello")); err != nil {
		t.Fatalf("write to client side: %v", err)
	}

	got := make([]byte, 5)
	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(clientSide, got); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !bytes.Equal(got, []byte("world")) {
		t.Fatalf("expected 'world', got %q", got)
	}

	clientSide.Close()
	<-serverDone
}

func TestRelayFailsOnUnreachableBackend(t *testing.T) {
	_, relaySide := net.Pipe()
	defer relaySide.Close()
	tk := &Ticket{Network: "tcp", Address: "127.0.0.1:1", ExpiresAt: time.Now().Add(time.Second)}
	if err := Relay(context.Background(), tk, relaySide); err == nil {
		t.Fatal("expected dial failure against an unreachable backend")
	}
}
