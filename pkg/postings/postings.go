// Package postings defines the posting-list payload used by term indexes: a
// key (the term) maps to the list of places it occurs.
package postings

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Posting is one occurrence reference: which source it appeared in and at
// what position.
type Posting struct {
	Source   string `msgpack:"source"`
	Position uint32 `msgpack:"position"`
}

// Encode serializes a posting list deterministically. The list order is
// preserved; callers that need canonical output should append in a stable
// order.
func Encode(list []Posting) ([]byte, error) {
	if list == nil {
		list = []Posting{}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a posting list from its serialized form.
func Decode(data []byte) ([]Posting, error) {
	var list []Posting
	if err := msgpack.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
