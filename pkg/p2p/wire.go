package p2p

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessage bounds a single request or reply on the request stream.
const maxMessage = 1 << 20

// writeMessage frames b with a uvarint length prefix.
func writeMessage(w io.Writer, b []byte) error {
	if len(b) > maxMessage {
		return fmt.Errorf("message too large: %d bytes", len(b))
	}
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(b)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readMessage(r *bufio.Reader) ([]byte, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if size > maxMessage {
		return nil, fmt.Errorf("message too large: %d bytes", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
