package isobox

// NodeIndex is an index into a Tree's node arena. The zero Tree has no
// nodes; RootIndex is only valid after at least one node exists.
type NodeIndex int

// RootIndex is the index of the synthetic root node added by NewTree.
const RootIndex NodeIndex = 0

// noParent marks the root node, which has no parent.
const noParent NodeIndex = -1

// boxNode is one node in the box tree arena.
type boxNode struct {
	Type     BoxType
	Size     uint64
	Large    bool
	UUID     *[16]byte
	Parent   NodeIndex
	Children []NodeIndex
	// Data is the raw leaf payload, preserved verbatim for re-emission.
	// Container nodes leave this nil; their content lives in Children.
	Data    []byte
	Unknown bool
}

// Tree is an arena of box nodes. Children only ever reference indices
// greater than their parent's, since construction is strictly
// append-only (depth-first, as boxes are read) — this rules out cycles
// without needing a visited-set check anywhere that walks the tree.
type Tree struct {
	nodes []boxNode
}

// NewTree returns a Tree with a synthetic root node at RootIndex holding
// the top-level boxes as children.
func NewTree() *Tree {
	return &Tree{nodes: []boxNode{{Parent: noParent}}}
}

// Add appends a new node as a child of parent and returns its index.
func (t *Tree) Add(parent NodeIndex, typ BoxType, data []byte) NodeIndex {
	idx := NodeIndex(len(t.nodes))
	t.nodes = append(t.nodes, boxNode{Type: typ, Data: data, Parent: parent})
	t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	return idx
}

// Type returns the type of the node at idx.
func (t *Tree) Type(idx NodeIndex) BoxType { return t.nodes[idx].Type }

// Data returns the raw payload of the node at idx.
func (t *Tree) Data(idx NodeIndex) []byte { return t.nodes[idx].Data }

// Parent returns the parent of the node at idx, or noParent for the root.
func (t *Tree) Parent(idx NodeIndex) NodeIndex { return t.nodes[idx].Parent }

// Children returns the child indices of the node at idx.
func (t *Tree) Children(idx NodeIndex) []NodeIndex { return t.nodes[idx].Children }

// SetUUID records the 16-byte extended type for a "uuid" box.
func (t *Tree) SetUUID(idx NodeIndex, uuid [16]byte) { t.nodes[idx].UUID = &uuid }

// UUID returns the extended type for a "uuid" box, or nil if unset.
func (t *Tree) UUID(idx NodeIndex) *[16]byte { return t.nodes[idx].UUID }

// MarkUnknown flags idx as a box type with no known handler.
func (t *Tree) MarkUnknown(idx NodeIndex) { t.nodes[idx].Unknown = true }

// IsUnknown reports whether idx was flagged by MarkUnknown.
func (t *Tree) IsUnknown(idx NodeIndex) bool { return t.nodes[idx].Unknown }

// Find returns the first direct child of parent with the given type, or
// -1 if none exists.
func (t *Tree) Find(parent NodeIndex, typ BoxType) NodeIndex {
	for _, c := range t.nodes[parent].Children {
		if t.nodes[c].Type == typ {
			return c
		}
	}
	return -1
}

// FindAll returns all direct children of parent with the given type.
func (t *Tree) FindAll(parent NodeIndex, typ BoxType) []NodeIndex {
	var out []NodeIndex
	for _, c := range t.nodes[parent].Children {
		if t.nodes[c].Type == typ {
			out = append(out, c)
		}
	}
	return out
}

// Walk calls fn for idx and, while fn returns true, every descendant in
// depth-first pre-order.
func (t *Tree) Walk(idx NodeIndex, fn func(NodeIndex) bool) {
	if !fn(idx) {
		return
	}
	for _, c := range t.nodes[idx].Children {
		t.Walk(c, fn)
	}
}

// BuildFromReader populates a Tree by recursively descending r from its
// current position, treating container box types (per IsContainerBox)
// as nodes to recurse into and everything else as a data leaf. The
// caller is expected to have already validated the first-box rule.
func BuildFromReader(t *Tree, parent NodeIndex, r *Reader) {
	for r.Next() {
		typ := r.Type()
		if typ == TypeUUID {
			idx := t.Add(parent, typ, r.Data())
			var uuid [16]byte
			if d := r.Data(); len(d) >= 16 {
				copy(uuid[:], d[:16])
			}
			t.SetUUID(idx, uuid)
			continue
		}
		if IsContainerBox(typ) {
			idx := t.Add(parent, typ, nil)
			r.Enter()
			BuildFromReader(t, idx, r)
			r.Exit()
			continue
		}
		t.Add(parent, typ, r.Data())
	}
}
