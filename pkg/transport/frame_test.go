package transport

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func TestStreamConn_RoundTrip(t *testing.T) {
	c0, c1 := net.Pipe()
	a := NewStreamConn(c0, 0)
	b := NewStreamConn(c1, 0)
	defer a.Close()
	defer b.Close()

	want := []byte{1, 2, 3, 4}
	go func() {
		a.WriteMessage(want)
	}()

	got, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadMessage() = %x, want %x", got, want)
	}
}

func TestStreamConn_OversizeFrame(t *testing.T) {
	t.Run("read side", func(t *testing.T) {
		c0, c1 := net.Pipe()
		sc := NewStreamConn(c0, 16)
		defer sc.Close()
		defer c1.Close()

		// Header declaring a 256-byte message against a 16-byte limit.
		go c1.Write([]byte{0x01, 0x00})

		if _, err := sc.ReadMessage(); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("ReadMessage() error = %v, want ErrFrameTooLarge", err)
		}
	})

	t.Run("write side", func(t *testing.T) {
		c0, _ := net.Pipe()
		sc := NewStreamConn(c0, 16)
		defer sc.Close()

		if err := sc.WriteMessage(make([]byte, 17)); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("WriteMessage() error = %v, want ErrFrameTooLarge", err)
		}
	})
}

func TestPacketConn_RoundTrip(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	device := pipe.DeviceConn()
	peer := pipe.PeerConn()

	want := []byte{0xAA, 0xBB}
	if err := peer.WriteMessage(want); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	got, err := device.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadMessage() = %x, want %x", got, want)
	}
}
