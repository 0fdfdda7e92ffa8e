package p2p

import (
	"bufio"
	"bytes"
	"testing"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	msgs := [][]byte{[]byte(`{"type":"DELETE_ORDER","orderId":"o1"}`), {}, bytes.Repeat([]byte("x"), 300)}
	for _, m := range msgs {
		if err := writeMessage(&buf, m); err != nil {
			t.Fatalf("writeMessage: %v", err)
		}
	}

	r := bufio.NewReader(&buf)
	for i, want := range msgs {
		got, err := readMessage(r)
		if err != nil {
			t.Fatalf("readMessage %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d = %q, want %q", i, got, want)
		}
	}
	if _, err := readMessage(r); err == nil {
		t.Error("expected EOF after last message")
	}
}

func TestOversizedMessageRejected(t *testing.T) {
	if err := writeMessage(&bytes.Buffer{}, make([]byte, maxMessage+1)); err == nil {
		t.Error("writeMessage accepted oversized payload")
	}

	var hdr bytes.Buffer
	// Length prefix alone, claiming more than the limit.
	hdr.Write([]byte{0x81, 0x80, 0x80, 0x01})
	if _, err := readMessage(bufio.NewReader(&hdr)); err == nil {
		t.Error("readMessage accepted oversized length")
	}
}
