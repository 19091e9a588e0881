package certification

import (
	"bytes"
	"crypto/sha256"

	"github.com/fxamacker/cbor/v2"

	"github.com/canscript/canscript/errors"
)

// Node is one node of a pruned hash tree. The concrete types are
// EmptyNode, ForkNode, LabeledNode, LeafNode and PrunedNode.
type Node interface {
	isNode()

	// Digest is the node's hash in the tree's Merkle structure.
	Digest() [32]byte
}

// EmptyNode is the empty subtree.
type EmptyNode struct{}

// ForkNode joins two subtrees.
type ForkNode struct {
	Left  Node
	Right Node
}

// LabeledNode wraps a subtree under an edge label.
type LabeledNode struct {
	Label []byte
	Tree  Node
}

// LeafNode holds a stored value.
type LeafNode struct {
	Value []byte
}

// PrunedNode stands in for a subtree the replica cut out, keeping only
// its digest.
type PrunedNode struct {
	Hash [32]byte
}

func (EmptyNode) isNode()   {}
func (ForkNode) isNode()    {}
func (LabeledNode) isNode() {}
func (LeafNode) isNode()    {}
func (PrunedNode) isNode()  {}

func domainHash(sep string, parts ...[]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(len(sep))})
	h.Write([]byte(sep))
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (EmptyNode) Digest() [32]byte {
	return domainHash("ic-hashtree-empty")
}

func (n ForkNode) Digest() [32]byte {
	l, r := n.Left.Digest(), n.Right.Digest()
	return domainHash("ic-hashtree-fork", l[:], r[:])
}

func (n LabeledNode) Digest() [32]byte {
	t := n.Tree.Digest()
	return domainHash("ic-hashtree-labeled", n.Label, t[:])
}

func (n LeafNode) Digest() [32]byte {
	return domainHash("ic-hashtree-leaf", n.Value)
}

func (n PrunedNode) Digest() [32]byte {
	return n.Hash
}

// Tag values of the CBOR tree encoding.
const (
	tagEmpty   = 0
	tagFork    = 1
	tagLabeled = 2
	tagLeaf    = 3
	tagPruned  = 4
)

// ParseTree decodes the CBOR array encoding of a hash tree.
func ParseTree(raw cbor.RawMessage) (Node, error) {
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, errors.Certification("decoding hash tree", err)
	}
	return buildNode(v)
}

func buildNode(v any) (Node, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, errors.Certification("hash tree node is not a tagged array", nil)
	}
	tag, ok := asUint(arr[0])
	if !ok {
		return nil, errors.Certification("hash tree node has no numeric tag", nil)
	}

	switch tag {
	case tagEmpty:
		return EmptyNode{}, nil

	case tagFork:
		if len(arr) != 3 {
			return nil, errors.Certification("fork node needs two subtrees", nil)
		}
		left, err := buildNode(arr[1])
		if err != nil {
			return nil, err
		}
		right, err := buildNode(arr[2])
		if err != nil {
			return nil, err
		}
		return ForkNode{Left: left, Right: right}, nil

	case tagLabeled:
		if len(arr) != 3 {
			return nil, errors.Certification("labeled node needs a label and a subtree", nil)
		}
		label, ok := asBytes(arr[1])
		if !ok {
			return nil, errors.Certification("labeled node label is not bytes", nil)
		}
		sub, err := buildNode(arr[2])
		if err != nil {
			return nil, err
		}
		return LabeledNode{Label: label, Tree: sub}, nil

	case tagLeaf:
		if len(arr) != 2 {
			return nil, errors.Certification("leaf node needs a value", nil)
		}
		value, ok := asBytes(arr[1])
		if !ok {
			return nil, errors.Certification("leaf node value is not bytes", nil)
		}
		return LeafNode{Value: value}, nil

	case tagPruned:
		if len(arr) != 2 {
			return nil, errors.Certification("pruned node needs a digest", nil)
		}
		digest, ok := asBytes(arr[1])
		if !ok || len(digest) != 32 {
			return nil, errors.Certification("pruned node digest is not 32 bytes", nil)
		}
		var n PrunedNode
		copy(n.Hash[:], digest)
		return n, nil

	default:
		return nil, errors.Certification("unknown hash tree node tag", nil)
	}
}

func asUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func asBytes(v any) ([]byte, bool) {
	b, ok := v.([]byte)
	return b, ok
}

// LookupStatus reports what a path lookup established about the state.
type LookupStatus int

const (
	// LookupFound means the path leads to a leaf.
	LookupFound LookupStatus = iota
	// LookupAbsent means the tree proves the path holds no value.
	LookupAbsent
	// LookupUnknown means pruning hides whether the path has a value.
	LookupUnknown
)

// Lookup walks the tree along a path of labels. On LookupFound the leaf
// value is returned.
func Lookup(n Node, path ...[]byte) ([]byte, LookupStatus) {
	for _, label := range path {
		sub, status := lookupLabel(n, label)
		if status != LookupFound {
			return nil, status
		}
		n = sub
	}
	if leaf, ok := n.(LeafNode); ok {
		return leaf.Value, LookupFound
	}
	// A non-leaf at the end of the path proves there is no value here,
	// unless pruning hides one.
	if treeUncertain(n) {
		return nil, LookupUnknown
	}
	return nil, LookupAbsent
}

func lookupLabel(n Node, label []byte) (Node, LookupStatus) {
	switch t := n.(type) {
	case LabeledNode:
		if bytes.Equal(label, t.Label) {
			return t.Tree, LookupFound
		}
		return nil, LookupAbsent
	case ForkNode:
		left, status := lookupLabel(t.Left, label)
		if status == LookupFound {
			return left, LookupFound
		}
		right, rstatus := lookupLabel(t.Right, label)
		if rstatus == LookupFound {
			return right, LookupFound
		}
		if status == LookupUnknown || rstatus == LookupUnknown {
			return nil, LookupUnknown
		}
		return nil, LookupAbsent
	case PrunedNode:
		return nil, LookupUnknown
	default:
		return nil, LookupAbsent
	}
}

func treeUncertain(n Node) bool {
	switch t := n.(type) {
	case PrunedNode:
		return true
	case ForkNode:
		return treeUncertain(t.Left) || treeUncertain(t.Right)
	case LabeledNode:
		return treeUncertain(t.Tree)
	default:
		return false
	}
}
