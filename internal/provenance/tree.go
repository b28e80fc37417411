package provenance

import (
	"sort"

	"footprint/internal/domain"
)

// TreeNode is one label in the nested view of an event tree
type TreeNode struct {
	Name     string      `json:"name" yaml:"name"`
	Children []*TreeNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// Children indexes rows as parent label -> child labels, in row order and
// without duplicates. The root event hangs under domain.RootLabel.
func Children(rows []Row) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, r := range rows {
		if r.Label == "" || r.ParentLabel == "" {
			continue
		}
		key := [2]string{r.ParentLabel, r.Label}
		if seen[key] {
			continue
		}
		seen[key] = true
		out[r.ParentLabel] = append(out[r.ParentLabel], r.Label)
	}
	return out
}

// BuildTree nests a parent -> children index under the first label (in
// sorted order) that is nobody's child. Returns nil when no such label
// exists. A label is expanded only once, so repeated or cyclic references
// appear as leaves.
func BuildTree(children map[string][]string) *TreeNode {
	root := findRoot(children)
	if root == "" {
		return nil
	}

	top := &TreeNode{Name: root}
	expanded := map[string]bool{root: true}
	stack := []*TreeNode{top}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, c := range children[n.Name] {
			child := &TreeNode{Name: c}
			n.Children = append(n.Children, child)
			if !expanded[c] {
				expanded[c] = true
				stack = append(stack, child)
			}
		}
	}
	return top
}

func findRoot(children map[string][]string) string {
	isChild := make(map[string]bool)
	keys := make([]string, 0, len(children))
	for k, cs := range children {
		if len(cs) == 0 {
			continue
		}
		keys = append(keys, k)
		for _, c := range cs {
			isChild[c] = true
		}
	}
	sort.Strings(keys)

	// the scan root is always preferred
	if len(children[domain.RootLabel]) > 0 && !isChild[domain.RootLabel] {
		return domain.RootLabel
	}
	for _, k := range keys {
		if !isChild[k] {
			return k
		}
	}
	return ""
}
