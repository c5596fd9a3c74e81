// Package idindex resolves abbreviated identifiers, the way short commit
// hashes resolve to full ones.
//
// Uses go-radix: ids share long prefixes (uuids, xids) and the radix tree
// stores each shared run once.
package idindex

import (
	"errors"
	"fmt"

	"github.com/armon/go-radix"
)

var (
	ErrNoMatch   = errors.New("no id matches prefix")
	ErrAmbiguous = errors.New("id prefix is ambiguous")
)

// Index is a set of ids. Not safe for concurrent use.
type Index struct {
	tree *radix.Tree
}

// New creates an empty index.
func New() *Index {
	return &Index{tree: radix.New()}
}

// Add inserts id. Adding an existing id is a no-op.
func (x *Index) Add(id string) {
	x.tree.Insert(id, struct{}{})
}

// Remove deletes id and reports whether it was present.
func (x *Index) Remove(id string) bool {
	_, ok := x.tree.Delete(id)
	return ok
}

// Contains reports whether id is in the index.
func (x *Index) Contains(id string) bool {
	_, ok := x.tree.Get(id)
	return ok
}

// Len returns the number of ids.
func (x *Index) Len() int {
	return x.tree.Len()
}

// Matches returns up to limit ids starting with prefix, in lexical order.
// A limit of zero returns all of them.
func (x *Index) Matches(prefix string, limit int) []string {
	var out []string
	x.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		out = append(out, k)
		return limit > 0 && len(out) >= limit
	})
	return out
}

// Resolve returns the single id starting with prefix. An exact match wins
// even when longer ids share it as a prefix.
func (x *Index) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrNoMatch)
	}
	if x.Contains(prefix) {
		return prefix, nil
	}
	switch m := x.Matches(prefix, 2); len(m) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrNoMatch, prefix)
	case 1:
		return m[0], nil
	default:
		return "", fmt.Errorf("%w: %q matches %s and others", ErrAmbiguous, prefix, m[0])
	}
}
