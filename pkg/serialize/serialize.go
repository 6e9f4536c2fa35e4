// Package serialize implements the two payload encodings the cache's L2
// tier can store list pages in: JSON and a small tagged binary form. The
// core only needs something that turns a slice of entities into bytes and
// back, so both are provided as a default, swappable [Codec] rather than
// baked into the cache packages themselves.
package serialize

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Codec encodes and decodes a slice of E to and from bytes.
type Codec[E any] interface {
	Encode(items []E) ([]byte, error)
	Decode(raw []byte) ([]E, error)
}

// JSON is a [Codec] backed by [encoding/json]. It is the simplest option
// and the one most external HTTP layers expect query_json to return.
type JSON[E any] struct{}

func (JSON[E]) Encode(items []E) ([]byte, error) { return json.Marshal(items) }

func (JSON[E]) Decode(raw []byte) ([]E, error) {
	var items []E
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// binaryMagic tags the tagged-binary format, distinct from the list-bounds
// header's own magic so a misrouted payload fails loudly rather than being
// silently misparsed.
var binaryMagic = [2]byte{0x42, 0x31} // "B1"

// Binary is a small tagged binary [Codec]: a 2-byte magic, a uint32 item
// count, then each item as a uint32-length-prefixed JSON document.
//
// The point is a wire form distinct from plain JSON that a reader can
// recognize by its leading bytes, without requiring every entity type to
// hand-write its own binary marshaler; per-field binary packing is left
// to a caller that wants to swap this Codec out for one of its own.
type Binary[E any] struct{}

func (Binary[E]) Encode(items []E) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(binaryMagic[:])
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(items)))
	buf.Write(countBuf[:])

	for _, item := range items {
		enc, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("serialize: encoding item: %w", err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf.Write(lenBuf[:])
		buf.Write(enc)
	}
	return buf.Bytes(), nil
}

func (Binary[E]) Decode(raw []byte) ([]E, error) {
	if len(raw) < 6 || raw[0] != binaryMagic[0] || raw[1] != binaryMagic[1] {
		return nil, fmt.Errorf("serialize: missing tagged-binary magic")
	}
	count := binary.LittleEndian.Uint32(raw[2:6])
	items := make([]E, 0, count)
	off := 6
	for i := uint32(0); i < count; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("serialize: truncated length prefix at item %d", i)
		}
		n := int(binary.LittleEndian.Uint32(raw[off : off+4]))
		off += 4
		if off+n > len(raw) {
			return nil, fmt.Errorf("serialize: truncated item %d", i)
		}
		var item E
		if err := json.Unmarshal(raw[off:off+n], &item); err != nil {
			return nil, fmt.Errorf("serialize: decoding item %d: %w", i, err)
		}
		items = append(items, item)
		off += n
	}
	return items, nil
}
