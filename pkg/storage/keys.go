package storage

import "fmt"

// Key schema:
//
//	ord:<orderID> → Order (JSON)
//	meta:seq      → highest local sequence number (8-byte big endian)
const (
	prefixOrder = "ord:"
	keySequence = "meta:seq"
)

func orderKey(orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, orderID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
