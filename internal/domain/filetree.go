package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NodeKind discriminates the file tree node variant
type NodeKind string

const (
	NodeFile      NodeKind = "file"
	NodeDirectory NodeKind = "directory"
)

// FileTreeNode is either a file leaf or a directory of named children
type FileTreeNode struct {
	Kind     NodeKind
	Contents string
	Children map[string]*FileTreeNode
}

// FileTree is the root of a project's file tree: the root directory's
// children keyed by name. This matches the wire shape exchanged with
// clients and the collaborator service.
type FileTree map[string]*FileTreeNode

// NewFile creates a file leaf
func NewFile(contents string) *FileTreeNode {
	return &FileTreeNode{Kind: NodeFile, Contents: contents}
}

// NewDirectory creates a directory node
func NewDirectory(children map[string]*FileTreeNode) *FileTreeNode {
	if children == nil {
		children = map[string]*FileTreeNode{}
	}
	return &FileTreeNode{Kind: NodeDirectory, Children: children}
}

type fileTreeNodeJSON struct {
	Kind     NodeKind                 `json:"kind"`
	Contents *string                  `json:"contents,omitempty"`
	Children map[string]*FileTreeNode `json:"children,omitempty"`
}

// MarshalJSON encodes the tagged variant
func (n *FileTreeNode) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NodeFile:
		contents := n.Contents
		return json.Marshal(fileTreeNodeJSON{Kind: NodeFile, Contents: &contents})
	case NodeDirectory:
		children := n.Children
		if children == nil {
			children = map[string]*FileTreeNode{}
		}
		return json.Marshal(fileTreeNodeJSON{Kind: NodeDirectory, Children: children})
	default:
		return nil, fmt.Errorf("unknown node kind %q", n.Kind)
	}
}

// UnmarshalJSON decodes the tagged variant, rejecting unknown kinds
func (n *FileTreeNode) UnmarshalJSON(data []byte) error {
	var aux fileTreeNodeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch aux.Kind {
	case NodeFile:
		n.Kind = NodeFile
		if aux.Contents != nil {
			n.Contents = *aux.Contents
		}
		n.Children = nil
	case NodeDirectory:
		n.Kind = NodeDirectory
		n.Contents = ""
		n.Children = aux.Children
		if n.Children == nil {
			n.Children = map[string]*FileTreeNode{}
		}
	default:
		return fmt.Errorf("unknown node kind %q", aux.Kind)
	}

	return nil
}

// Clone returns a deep copy of the node
func (n *FileTreeNode) Clone() *FileTreeNode {
	if n == nil {
		return nil
	}
	out := &FileTreeNode{Kind: n.Kind, Contents: n.Contents}
	if n.Children != nil {
		out.Children = make(map[string]*FileTreeNode, len(n.Children))
		for name, child := range n.Children {
			out.Children[name] = child.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the tree
func (t FileTree) Clone() FileTree {
	if t == nil {
		return nil
	}
	out := make(FileTree, len(t))
	for name, node := range t {
		out[name] = node.Clone()
	}
	return out
}

// Lookup resolves a slash-separated path to a node. Leading and trailing
// slashes are ignored.
func (t FileTree) Lookup(path string) (*FileTreeNode, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	current := t
	for i, segment := range segments {
		node, ok := current[segment]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return node, true
		}
		if node.Kind != NodeDirectory {
			return nil, false
		}
		current = node.Children
	}
	return nil, false
}

// SetFile replaces the contents of an existing file leaf at path
func (t FileTree) SetFile(path, contents string) error {
	node, ok := t.Lookup(path)
	if !ok {
		return fmt.Errorf("no such file: %s", path)
	}
	if node.Kind != NodeFile {
		return fmt.Errorf("not a file: %s", path)
	}
	node.Contents = contents
	return nil
}

// Paths returns every path in the tree in lexical order, files and
// directories alike. Mostly useful in tests and diagnostics.
func (t FileTree) Paths() []string {
	var paths []string
	var walk func(prefix string, tree map[string]*FileTreeNode)
	walk = func(prefix string, tree map[string]*FileTreeNode) {
		for name, node := range tree {
			p := name
			if prefix != "" {
				p = prefix + "/" + name
			}
			paths = append(paths, p)
			if node.Kind == NodeDirectory {
				walk(p, node.Children)
			}
		}
	}
	walk("", t)
	sort.Strings(paths)
	return paths
}

func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
