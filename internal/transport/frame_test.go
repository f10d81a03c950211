package transport

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewConn(server)
	cc := NewConn(client)

	payload := []byte(`{"type":"STATUS"}`)
	done := make(chan error, 1)
	go func() { done <- sc.Send(payload) }()

	got, err := cc.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
}

func TestReceiveEOFOnClose(t *testing.T) {
	server, client := net.Pipe()
	cc := NewConn(client)

	server.Close()
	if _, err := cc.Receive(); err == nil {
		t.Error("expected an error after the peer closed the connection")
	}
	cc.Close()
}

func TestReceiveRejectsOversizedFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cc := NewConn(client)

	header := make([]byte, 4)
	// Declare a size larger than MaxFrameSize.
	header[0], header[1], header[2], header[3] = 0xff, 0xff, 0xff, 0xff

	done := make(chan error, 1)
	go func() {
		_, err := server.Write(header)
		done <- err
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := cc.Receive()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected an error for an oversized frame declaration")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Receive to reject the oversized frame")
	}
	<-done
}

func TestRemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cc := NewConn(client)
	if cc.RemoteAddr() == nil {
		t.Error("expected a non-nil RemoteAddr")
	}
}
