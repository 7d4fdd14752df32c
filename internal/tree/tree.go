// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package tree assembles the flat category scan into a nested forest and
// renders it as a depth-annotated flat list for select boxes and admin
// tables. All traversals use explicit work stacks so that a pathological
// parent chain cannot exhaust the goroutine stack.
package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"taxonomy/internal/models"
)

// DefaultMaxDepth caps how deep a forest may nest. Admin-maintained
// taxonomies are a handful of levels deep.
const DefaultMaxDepth = 64

// DefaultDepthStep is the indentation step used by the admin list.
const DefaultDepthStep = 2

// ErrTooDeep is returned when a chain of categories exceeds the depth cap.
var ErrTooDeep = errors.New("category tree exceeds maximum depth")

// Node is a category with its nested children.
type Node struct {
	models.Category
	Children []*Node `json:"children"`
}

// FlatRow is one line of the indented list view.
type FlatRow struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	ParentName    *string   `json:"parent_name"`
	ChildrenCount int       `json:"children_count"`
	Depth         int       `json:"depth"`
}

// Assembler builds forests. MaxDepth counts levels, roots included. The
// zero value sorts with the root locale and uses DefaultMaxDepth.
type Assembler struct {
	Locale   language.Tag
	MaxDepth int
}

// NewAssembler returns an Assembler for the given locale and depth cap.
func NewAssembler(locale language.Tag, maxDepth int) *Assembler {
	return &Assembler{Locale: locale, MaxDepth: maxDepth}
}

// BuildForest nests rows under their parents. Rows whose parent is missing
// from rows become roots (orphan-roots). Siblings are ordered by name using
// the assembler's collation, then slug, then id.
func (a *Assembler) BuildForest(rows []models.Category) ([]*Node, error) {
	maxDepth := a.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	less := a.lessFunc()

	byID := make(map[uuid.UUID]models.Category, len(rows))
	order := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		if _, dup := byID[r.ID]; dup {
			continue
		}
		byID[r.ID] = r
		order = append(order, r.ID)
	}

	children := make(map[uuid.UUID][]models.Category)
	var roots []models.Category
	for _, id := range order {
		r := byID[id]
		if r.ParentID == nil {
			roots = append(roots, r)
			continue
		}
		if _, ok := byID[*r.ParentID]; !ok {
			roots = append(roots, r)
			continue
		}
		children[*r.ParentID] = append(children[*r.ParentID], r)
	}
	for pid := range children {
		kids := children[pid]
		sort.SliceStable(kids, func(i, j int) bool { return less(kids[i], kids[j]) })
	}

	visited := make(map[uuid.UUID]bool, len(byID))
	var forest []*Node

	type frame struct {
		node  *Node
		depth int
	}
	expand := func(root models.Category) error {
		n := &Node{Category: root, Children: []*Node{}}
		forest = append(forest, n)
		visited[root.ID] = true

		stack := []frame{{node: n, depth: 0}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			kids := children[f.node.ID]
			if len(kids) == 0 {
				continue
			}
			if f.depth+1 >= maxDepth {
				return fmt.Errorf("%w: %q is nested %d levels deep", ErrTooDeep, kids[0].Name, f.depth+1)
			}
			for _, k := range kids {
				if visited[k.ID] {
					continue
				}
				visited[k.ID] = true
				child := &Node{Category: k, Children: []*Node{}}
				f.node.Children = append(f.node.Children, child)
				stack = append(stack, frame{node: child, depth: f.depth + 1})
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := expand(r); err != nil {
			return nil, err
		}
	}

	// Rows that were never reached sit on a corrupt parent cycle. Promote
	// them rather than silently losing data.
	var stranded []models.Category
	for _, id := range order {
		if !visited[id] {
			stranded = append(stranded, byID[id])
		}
	}
	if len(stranded) > 0 {
		sort.SliceStable(stranded, func(i, j int) bool { return less(stranded[i], stranded[j]) })
		for _, r := range stranded {
			if visited[r.ID] {
				continue
			}
			if err := expand(r); err != nil {
				return nil, err
			}
		}
	}

	sort.SliceStable(forest, func(i, j int) bool { return less(forest[i].Category, forest[j].Category) })
	return forest, nil
}

// lessFunc returns the sibling ordering. A collator is not safe for
// concurrent use, so each build gets its own.
func (a *Assembler) lessFunc() func(x, y models.Category) bool {
	col := collate.New(a.Locale)
	return func(x, y models.Category) bool {
		if c := col.CompareString(x.Name, y.Name); c != 0 {
			return c < 0
		}
		if c := strings.Compare(x.Slug, y.Slug); c != 0 {
			return c < 0
		}
		return x.ID.String() < y.ID.String()
	}
}

// Sort orders rows the way BuildForest orders siblings.
func (a *Assembler) Sort(rows []models.Category) {
	less := a.lessFunc()
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// Flatten walks the forest in pre-order. Depth is level × step, so the
// presentation layer decides how wide an indentation level is.
func Flatten(forest []*Node, step int) []FlatRow {
	if step < 0 {
		step = 0
	}

	type frame struct {
		node   *Node
		level  int
		parent *string
	}
	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: forest[i]})
	}

	var rows []FlatRow
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rows = append(rows, FlatRow{
			ID:            f.node.ID,
			Name:          f.node.Name,
			Slug:          f.node.Slug,
			ParentName:    f.parent,
			ChildrenCount: len(f.node.Children),
			Depth:         f.level * step,
		})

		name := f.node.Name
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: f.node.Children[i], level: f.level + 1, parent: &name})
		}
	}
	return rows
}

// ActiveOnly returns a copy of the forest without inactive nodes. An
// inactive node hides its whole subtree from the active view, although the
// descendants keep their own is_active flag.
func ActiveOnly(forest []*Node) []*Node {
	type frame struct {
		src *Node
		dst *Node
	}

	var out []*Node
	var stack []frame
	for _, root := range forest {
		if !root.IsActive {
			continue
		}
		n := &Node{Category: root.Category, Children: []*Node{}}
		out = append(out, n)
		stack = append(stack, frame{src: root, dst: n})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range f.src.Children {
			if !c.IsActive {
				continue
			}
			n := &Node{Category: c.Category, Children: []*Node{}}
			f.dst.Children = append(f.dst.Children, n)
			stack = append(stack, frame{src: c, dst: n})
		}
	}
	return out
}

// Count returns the number of nodes in the forest.
func Count(forest []*Node) int {
	total := 0
	stack := append([]*Node(nil), forest...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, n.Children...)
	}
	return total
}
