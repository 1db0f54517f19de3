// Package snapshot implements the in-memory snapshot of the vault and the
// codec that seals it into a single encrypted blob on disk.
//
// A Snapshot is a set of independent named namespaces, each a byte-keyed
// map. Namespaces are purely in-memory; nothing reaches disk until the
// whole snapshot is committed by a Codec.
package snapshot

import (
	"bytes"
	"sort"
)

// Snapshot is the decrypted vault contents. It is not safe for concurrent
// use; the store package serializes access to it.
type Snapshot struct {
	namespaces map[string]*Namespace
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{namespaces: make(map[string]*Namespace)}
}

// Namespace returns the namespace called name, creating it on first use.
func (s *Snapshot) Namespace(name string) *Namespace {
	ns, ok := s.namespaces[name]
	if !ok {
		ns = newNamespace(name)
		s.namespaces[name] = ns
	}
	return ns
}

// Lookup returns the namespace called name without creating it.
func (s *Snapshot) Lookup(name string) (*Namespace, bool) {
	ns, ok := s.namespaces[name]
	return ns, ok
}

// Drop removes a namespace and all of its entries.
func (s *Snapshot) Drop(name string) {
	if ns, ok := s.namespaces[name]; ok {
		ns.wipe()
		delete(s.namespaces, name)
	}
}

// Names returns the namespace names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy that shares no memory with s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{namespaces: make(map[string]*Namespace, len(s.namespaces))}
	for name, ns := range s.namespaces {
		cp := newNamespace(name)
		for k, v := range ns.entries {
			cp.entries[k] = bytes.Clone(v)
		}
		out.namespaces[name] = cp
	}
	return out
}

// Wipe zeroes every stored value and empties the snapshot.
func (s *Snapshot) Wipe() {
	for name, ns := range s.namespaces {
		ns.wipe()
		delete(s.namespaces, name)
	}
}

// Namespace is a named byte-keyed key/value container inside a snapshot.
// Keys are unique; Insert overwrites.
type Namespace struct {
	name    string
	entries map[string][]byte
}

func newNamespace(name string) *Namespace {
	return &Namespace{name: name, entries: make(map[string][]byte)}
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Get returns a copy of the value stored under key.
func (n *Namespace) Get(key []byte) ([]byte, bool) {
	v, ok := n.entries[string(key)]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Insert stores a copy of value under key, replacing any previous value.
func (n *Namespace) Insert(key, value []byte) {
	if old, ok := n.entries[string(key)]; ok {
		zero(old)
	}
	v := make([]byte, len(value))
	copy(v, value)
	n.entries[string(key)] = v
}

// Delete removes key. Deleting a missing key is a no-op.
func (n *Namespace) Delete(key []byte) {
	if old, ok := n.entries[string(key)]; ok {
		zero(old)
		delete(n.entries, string(key))
	}
}

// Len returns the number of entries.
func (n *Namespace) Len() int {
	return len(n.entries)
}

// Keys returns the entry keys in sorted order.
func (n *Namespace) Keys() [][]byte {
	keys := make([]string, 0, len(n.entries))
	for k := range n.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

func (n *Namespace) wipe() {
	for k, v := range n.entries {
		zero(v)
		delete(n.entries, k)
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
