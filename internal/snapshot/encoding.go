package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// formatVersion is bumped whenever the plaintext layout changes.
const formatVersion = 1

type wireSnapshot struct {
	Version    uint            `cbor:"1,keyasint"`
	Namespaces []wireNamespace `cbor:"2,keyasint"`
}

type wireNamespace struct {
	Name    string      `cbor:"1,keyasint"`
	Entries []wireEntry `cbor:"2,keyasint"`
}

// Keys are arbitrary bytes, so they travel as byte strings rather than as
// CBOR map keys (which would have to be valid UTF-8 text).
type wireEntry struct {
	Key   []byte `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: the same snapshot always produces the
	// same plaintext bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes the snapshot plaintext.
func Marshal(s *Snapshot) ([]byte, error) {
	w := wireSnapshot{Version: formatVersion}
	for _, name := range s.Names() {
		ns := s.namespaces[name]
		wn := wireNamespace{Name: name}
		for _, key := range ns.Keys() {
			wn.Entries = append(wn.Entries, wireEntry{Key: key, Value: ns.entries[string(key)]})
		}
		w.Namespaces = append(w.Namespaces, wn)
	}
	return encMode.Marshal(w)
}

// Unmarshal decodes snapshot plaintext produced by Marshal.
func Unmarshal(data []byte) (*Snapshot, error) {
	var w wireSnapshot
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if w.Version != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", w.Version)
	}

	s := New()
	for _, wn := range w.Namespaces {
		if _, dup := s.namespaces[wn.Name]; dup {
			return nil, fmt.Errorf("duplicate namespace %q", wn.Name)
		}
		ns := s.Namespace(wn.Name)
		for _, e := range wn.Entries {
			ns.Insert(e.Key, e.Value)
		}
	}
	return s, nil
}
