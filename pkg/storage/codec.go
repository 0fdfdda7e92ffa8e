package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/meshbook/pkg/book"
)

func encodeOrder(o book.Order) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	return b, nil
}

func decodeOrder(b []byte) (book.Order, error) {
	var o book.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return book.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return o, nil
}

func encodeUint64(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
