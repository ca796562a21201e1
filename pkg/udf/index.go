package udf

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	native "github.com/s0up4200/go-udfvfs/internal/fs/udf"
)

// Node is one entry of an Index.
type Node struct {
	Name       []byte
	IsDir      bool
	Size       int64
	SizeKnown  bool
	Links      uint16
	LinksKnown bool
	Mode       fs.FileMode
	ModTime    time.Time
	Idx        uint32
	Partition  uint16 // partition reference of Idx

	Parent   int // -1 for the root
	Children []int
}

// Index is a snapshot of a volume's directory tree. Nodes are stored in an
// arena; node 0 is the root and children keep listing order.
type Index struct {
	Label string
	Nodes []Node
}

// BuildIndex walks the whole directory tree of v once. Directories that
// refer back to one of their ancestors are recorded but not descended into.
func BuildIndex(v *Volume) (*Index, error) {
	root := v.Root()
	if root == nil {
		return nil, ErrRootUnavailable
	}
	defer root.Close()

	ix := &Index{Label: v.Label()}
	ix.Nodes = append(ix.Nodes, snapshot(root, -1))
	ix.fill(root, 0, ancestors{root.addr(): true})
	v.log.Debugf("indexed %d entries", len(ix.Nodes))
	return ix, nil
}

// ancestors holds the directories on the current walk path, keyed by
// partition and block so equal block numbers in different partitions stay
// distinct.
type ancestors map[native.LBAddr]bool

// enter records addr and reports whether it was not already on the path.
func (a ancestors) enter(addr native.LBAddr) bool {
	if a[addr] {
		return false
	}
	a[addr] = true
	return true
}

func (a ancestors) leave(addr native.LBAddr) { delete(a, addr) }

func (ix *Index) fill(dir *DirectoryEntry, parent int, path ancestors) {
	for e := dir.Child(); e != nil; e = e.NextSibling() {
		i := len(ix.Nodes)
		n := snapshot(e, parent)
		ix.Nodes = append(ix.Nodes, n)
		ix.Nodes[parent].Children = append(ix.Nodes[parent].Children, i)

		if !n.IsDir {
			continue
		}
		addr := native.LBAddr{LogicalBlockNumber: n.Idx, PartitionReferenceNumber: n.Partition}
		if !path.enter(addr) {
			continue
		}
		ix.fill(e, i, path)
		path.leave(addr)
	}
}

func snapshot(e *DirectoryEntry, parent int) Node {
	n := Node{
		IsDir:   e.IsDir(),
		Mode:    e.Mode(),
		ModTime: e.ModTime(),
		Parent:  parent,
	}
	addr := e.addr()
	n.Idx, n.Partition = addr.LogicalBlockNumber, addr.PartitionReferenceNumber
	n.Name, _ = e.FileName()
	n.Size, n.SizeKnown = e.FileLength()
	n.Links, n.LinksKnown = e.LinkCount()
	return n
}

// Lookup resolves a slash-separated path to a node index.
func (ix *Index) Lookup(path string) (int, error) {
	cur := 0
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		if !ix.Nodes[cur].IsDir {
			return -1, fmt.Errorf("%w: %s", ErrNotADirectory, ix.Path(cur))
		}
		next := -1
		for _, c := range ix.Nodes[cur].Children {
			if string(ix.Nodes[c].Name) == part {
				next = c
				break
			}
		}
		if next < 0 {
			return -1, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
		}
		cur = next
	}
	return cur, nil
}

// Path returns the absolute path of node i.
func (ix *Index) Path(i int) string {
	var parts []string
	for ; i > 0; i = ix.Nodes[i].Parent {
		parts = append(parts, string(ix.Nodes[i].Name))
	}
	var b strings.Builder
	for j := len(parts) - 1; j >= 0; j-- {
		b.WriteByte('/')
		b.WriteString(parts[j])
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Walk calls fn for node i and its descendants in depth-first listing
// order. Returning fs.SkipDir from fn skips a directory's children.
func (ix *Index) Walk(i int, fn func(i, depth int) error) error {
	return ix.walk(i, 0, fn)
}

func (ix *Index) walk(i, depth int, fn func(i, depth int) error) error {
	if err := fn(i, depth); err != nil {
		if err == fs.SkipDir {
			return nil
		}
		return err
	}
	for _, c := range ix.Nodes[i].Children {
		if err := ix.walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
