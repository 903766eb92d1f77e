package storage

import (
	"encoding/binary"
	"fmt"
)

// LengthPrefixed encodes a namespace as a 2-byte big-endian length followed by
// the namespace itself, so that no namespace is a prefix of another.
func LengthPrefixed(namespace []byte) []byte {
	if len(namespace) > 0xFFFF {
		panic(fmt.Sprintf("storage: namespace too long (%d bytes)", len(namespace)))
	}
	out := make([]byte, 2+len(namespace))
	binary.BigEndian.PutUint16(out, uint16(len(namespace)))
	copy(out[2:], namespace)
	return out
}

// PrefixStore is a namespaced view over another store. Every key is written
// as LengthPrefixed(namespace) || key.
type PrefixStore struct {
	parent KVStore
	prefix []byte
}

// NewPrefixStore wraps parent under namespace.
func NewPrefixStore(parent KVStore, namespace []byte) *PrefixStore {
	return &PrefixStore{parent: parent, prefix: LengthPrefixed(namespace)}
}

func (p *PrefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *PrefixStore) Get(key []byte) ([]byte, error) { return p.parent.Get(p.key(key)) }

func (p *PrefixStore) Has(key []byte) (bool, error) { return p.parent.Has(p.key(key)) }

func (p *PrefixStore) Put(key []byte, value []byte) error { return p.parent.Put(p.key(key), value) }

func (p *PrefixStore) Delete(key []byte) error { return p.parent.Delete(p.key(key)) }

// ReadOnlyPrefixStore is the read-only counterpart of PrefixStore.
type ReadOnlyPrefixStore struct {
	parent Reader
	prefix []byte
}

// NewReadOnlyPrefixStore wraps a reader under namespace.
func NewReadOnlyPrefixStore(parent Reader, namespace []byte) *ReadOnlyPrefixStore {
	return &ReadOnlyPrefixStore{parent: parent, prefix: LengthPrefixed(namespace)}
}

func (p *ReadOnlyPrefixStore) Get(key []byte) ([]byte, error) {
	return p.parent.Get(append(append([]byte(nil), p.prefix...), key...))
}

func (p *ReadOnlyPrefixStore) Has(key []byte) (bool, error) {
	return p.parent.Has(append(append([]byte(nil), p.prefix...), key...))
}
