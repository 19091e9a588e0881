package agent

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/internal/leb128"
	"github.com/canscript/canscript/principal"
)

// RequestID computes the representation-independent hash of a request
// content map: concatenate the sorted (hash(key), hash(value)) pairs and
// hash once more.
func RequestID(content map[string]any) ([32]byte, error) {
	pairs := make([][]byte, 0, len(content))
	for k, v := range content {
		vh, err := hashValue(v)
		if err != nil {
			return [32]byte{}, err
		}
		kh := sha256.Sum256([]byte(k))
		pairs = append(pairs, append(kh[:], vh[:]...))
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i], pairs[j]) < 0 })

	h := sha256.New()
	for _, p := range pairs {
		h.Write(p)
	}
	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id, nil
}

func hashValue(v any) ([32]byte, error) {
	switch t := v.(type) {
	case string:
		return sha256.Sum256([]byte(t)), nil
	case []byte:
		return sha256.Sum256(t), nil
	case principal.Principal:
		return sha256.Sum256(t.Raw), nil
	case uint64:
		var buf bytes.Buffer
		leb128.AppendUint(&buf, t)
		return sha256.Sum256(buf.Bytes()), nil
	case []any:
		h := sha256.New()
		for _, e := range t {
			eh, err := hashValue(e)
			if err != nil {
				return [32]byte{}, err
			}
			h.Write(eh[:])
		}
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out, nil
	case [][]byte:
		h := sha256.New()
		for _, e := range t {
			eh := sha256.Sum256(e)
			h.Write(eh[:])
		}
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out, nil
	default:
		return [32]byte{}, errors.Net(fmt.Sprintf("unhashable request field of type %T", v), nil)
	}
}
