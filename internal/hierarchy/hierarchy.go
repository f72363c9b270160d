// SPDX-License-Identifier: MIT

// Package hierarchy models the tree of subtype labels a classifier predicts.
// Level 1 labels are scored for every sample; the children of a label are
// scored only for samples called positive for that label.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tallsorts/tallsorts/internal/tabular"
)

// RootParent names the implicit parent of all level 1 labels.
const RootParent = "Level0"

// ParentColumn is the required hierarchy column naming each label's parent.
const ParentColumn = "Parent"

var (
	ErrMissingParentColumn = errors.New("hierarchy file does not contain 'Parent' as a column title")
	ErrDuplicateLabel      = errors.New("label appears more than once in the hierarchy")
	ErrUnknownParent       = errors.New("parent label does not exist as its own label")
	ErrCycle               = errors.New("hierarchy contains a cycle")
	ErrEmpty               = errors.New("hierarchy has no labels")
	ErrUnknownLabel        = errors.New("unknown label")
	ErrBadLevelName        = errors.New("malformed level name")
)

// Subtype is a node of the hierarchy.
type Subtype struct {
	Label    string
	Level    int
	Parent   *Subtype
	Children []*Subtype
}

// Edge is the serialisable form of a node: a label and its parent ("" for roots).
type Edge struct {
	Label  string `json:"label"`
	Parent string `json:"parent,omitempty"`
}

// Hierarchy is an immutable label tree.
type Hierarchy struct {
	order []string
	nodes map[string]*Subtype
}

// Load reads a hierarchy file. The first column holds labels and a Parent
// column holds the parent label (empty for level 1).
func Load(path string) (*Hierarchy, error) {
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h, err := FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// FromTable builds a hierarchy from a parsed table.
func FromTable(t *tabular.Table) (*Hierarchy, error) {
	pc := t.Column(ParentColumn)
	if pc < 0 {
		return nil, ErrMissingParentColumn
	}
	if pc == 0 {
		return nil, fmt.Errorf("%w: first column must hold labels", ErrMissingParentColumn)
	}
	edges := make([]Edge, 0, len(t.Rows))
	for _, rec := range t.Rows {
		if rec[0] == "" {
			continue
		}
		edges = append(edges, Edge{Label: rec[0], Parent: rec[pc]})
	}
	return FromEdges(edges)
}

// FromEdges validates and links a list of edges.
func FromEdges(edges []Edge) (*Hierarchy, error) {
	if len(edges) == 0 {
		return nil, ErrEmpty
	}
	h := &Hierarchy{nodes: make(map[string]*Subtype, len(edges))}
	for _, e := range edges {
		if _, dup := h.nodes[e.Label]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, e.Label)
		}
		h.nodes[e.Label] = &Subtype{Label: e.Label}
		h.order = append(h.order, e.Label)
	}
	for _, e := range edges {
		if e.Parent == "" {
			continue
		}
		parent, ok := h.nodes[e.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: %q is listed as a parent of %q", ErrUnknownParent, e.Parent, e.Label)
		}
		child := h.nodes[e.Label]
		child.Parent = parent
		parent.Children = append(parent.Children, child)
	}
	for _, label := range h.order {
		if err := h.assignLevel(h.nodes[label]); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hierarchy) assignLevel(n *Subtype) error {
	if n.Level > 0 {
		return nil
	}
	depth := 1
	seen := map[string]struct{}{n.Label: {}}
	for p := n.Parent; p != nil; p = p.Parent {
		if _, loop := seen[p.Label]; loop {
			return fmt.Errorf("%w: through %q", ErrCycle, p.Label)
		}
		seen[p.Label] = struct{}{}
		depth++
	}
	n.Level = depth
	return nil
}

// Edges returns the hierarchy in declaration order.
func (h *Hierarchy) Edges() []Edge {
	out := make([]Edge, 0, len(h.order))
	for _, label := range h.order {
		e := Edge{Label: label}
		if p := h.nodes[label].Parent; p != nil {
			e.Parent = p.Label
		}
		out = append(out, e)
	}
	return out
}

// Labels returns every label in declaration order.
func (h *Hierarchy) Labels() []string {
	return append([]string(nil), h.order...)
}

// Has reports whether label is part of the hierarchy.
func (h *Hierarchy) Has(label string) bool {
	_, ok := h.nodes[label]
	return ok
}

// Get returns the node for label.
func (h *Hierarchy) Get(label string) (*Subtype, bool) {
	n, ok := h.nodes[label]
	return n, ok
}

// ParentOf returns the parent label, or RootParent for level 1 labels.
func (h *Hierarchy) ParentOf(label string) (string, error) {
	n, ok := h.nodes[label]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	if n.Parent == nil {
		return RootParent, nil
	}
	return n.Parent.Label, nil
}

// Ancestors returns the chain of parents from the direct parent upwards.
func (h *Hierarchy) Ancestors(label string) []string {
	n, ok := h.nodes[label]
	if !ok {
		return nil
	}
	var out []string
	for p := n.Parent; p != nil; p = p.Parent {
		out = append(out, p.Label)
	}
	return out
}

// Roots returns the level 1 labels, sorted.
func (h *Hierarchy) Roots() []string {
	var out []string
	for _, label := range h.order {
		if h.nodes[label].Parent == nil {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// Children returns the labels scored under parent. RootParent yields Roots.
func (h *Hierarchy) Children(parent string) []string {
	if parent == RootParent {
		return h.Roots()
	}
	n, ok := h.nodes[parent]
	if !ok {
		return nil
	}
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.Label
	}
	return out
}

// Parents returns RootParent followed by every label with children, ordered
// by level and then declaration order.
func (h *Hierarchy) Parents() []string {
	var inner []string
	for _, label := range h.order {
		if len(h.nodes[label].Children) > 0 {
			inner = append(inner, label)
		}
	}
	sort.SliceStable(inner, func(i, j int) bool {
		return h.nodes[inner[i]].Level < h.nodes[inner[j]].Level
	})
	return append([]string{RootParent}, inner...)
}

// MaxLevel returns the depth of the deepest label.
func (h *Hierarchy) MaxLevel() int {
	maxLevel := 0
	for _, n := range h.nodes {
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
	}
	return maxLevel
}

// LevelName names the prediction level scored under parent: "Level_1" for
// RootParent, otherwise "Level_<child level>_<parent>".
func (h *Hierarchy) LevelName(parent string) string {
	if parent == RootParent {
		return "Level_1"
	}
	n, ok := h.nodes[parent]
	if !ok {
		return ""
	}
	return "Level_" + strconv.Itoa(n.Level+1) + "_" + parent
}

// ChildrenOfLevel resolves a level name produced by LevelName back to the
// labels scored at that level.
func (h *Hierarchy) ChildrenOfLevel(levelName string) ([]string, error) {
	parts := strings.SplitN(levelName, "_", 3)
	if len(parts) < 2 || parts[0] != "Level" {
		return nil, fmt.Errorf("%w: %q", ErrBadLevelName, levelName)
	}
	num, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadLevelName, levelName)
	}
	if num == 1 {
		return h.Roots(), nil
	}
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadLevelName, levelName)
	}
	if !h.Has(parts[2]) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, parts[2])
	}
	return h.Children(parts[2]), nil
}
