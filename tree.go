// This file supports browsing a mounted volume at the whole-tree level,
// walking every directory reachable from the root on demand.

package exfat

import (
	"errors"
)

// Tree wraps a Root and walks it depth-first, opening each subdirectory the
// first time traversal reaches it.
type Tree struct {
	root *Root
}

// NewTree wraps root for whole-tree traversal.
func NewTree(root *Root) *Tree {
	return &Tree{root: root}
}

// TreeVisitorFunc is called once per reachable item, with its `\`-joined
// path from the root. Returning ErrStopVisit ends the walk early without
// error; any other non-nil error aborts the walk and is returned to the
// caller of Visit.
type TreeVisitorFunc func(path string, item Item) error

// ErrStopVisit is returned by a TreeVisitorFunc to end a Visit early.
var ErrStopVisit = errors.New("stop visit")

// Visit walks the tree depth-first, visiting a directory's subdirectories
// before its files at each level (matching this package's lineage), and
// calling cb for every reachable item.
func (tree *Tree) Visit(cb TreeVisitorFunc) error {
	err := tree.visit("", tree.root.Items(), cb)
	if err == ErrStopVisit {
		return nil
	}

	return err
}

func (tree *Tree) visit(prefix string, items []Item, cb TreeVisitorFunc) error {
	directories := make([]*Directory, 0)
	files := make([]*File, 0)

	for _, item := range items {
		switch v := item.(type) {
		case *Directory:
			directories = append(directories, v)
		case *File:
			files = append(files, v)
		}
	}

	for _, d := range directories {
		path := joinTreePath(prefix, d.Name())

		if err := cb(path, d); err != nil {
			return err
		}

		children, err := d.Open()
		if err != nil {
			return err
		}

		if err := tree.visit(path, children, cb); err != nil {
			return err
		}
	}

	for _, f := range files {
		path := joinTreePath(prefix, f.Name())

		if err := cb(path, f); err != nil {
			return err
		}
	}

	return nil
}

func joinTreePath(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + `\` + name
}

// List returns a flattened list of every reachable path in the tree,
// `\`-joined from the root, in the same folders-before-files order Visit
// uses.
func (tree *Tree) List() ([]string, error) {
	paths := make([]string, 0)

	err := tree.Visit(func(path string, item Item) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}
