package section

import (
	"sort"
)

type (
	Node struct {
		Section
		Children []*Node `json:"children"`
	}

	// Forest is the ordered list of a course's root Nodes.
	Forest []*Node
)

// BuildTree assembles flat sections into a Forest.
// Sections whose parent is absent (or belongs to another course) become roots.
// Siblings are sorted by Order, then ID.
func BuildTree(sections []Section) (Forest, error) {
	byID := make(map[string]Section, len(sections))
	for _, s := range sections {
		if _, dup := byID[s.ID]; dup {
			return nil, ErrDuplicateSection
		}
		byID[s.ID] = s
	}
	if err := checkCycles(byID); err != nil {
		return nil, err
	}

	nodes := make(map[string]*Node, len(sections))
	for _, s := range sections {
		nodes[s.ID] = &Node{Section: s}
	}

	roots := make(Forest, 0)
	for _, s := range sections {
		n := nodes[s.ID]
		if p, ok := parentOf(s, byID); ok {
			parent := nodes[p.ID]
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}
	sortNodes(roots)
	return roots, nil
}

// parentOf returns the parent of s when it exists within the same course.
func parentOf(s Section, byID map[string]Section) (Section, bool) {
	if s.ParentID == "" {
		return Section{}, false
	}
	p, ok := byID[s.ParentID]
	if !ok || p.CourseID != s.CourseID {
		return Section{}, false
	}
	return p, true
}

func checkCycles(byID map[string]Section) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(byID))

	for id := range byID {
		if state[id] == done {
			continue
		}
		path := make([]string, 0)
		cur, ok := byID[id], true
		for ok {
			switch state[cur.ID] {
			case visiting:
				return ErrCycleDetected
			case done:
				ok = false
				continue
			}
			state[cur.ID] = visiting
			path = append(path, cur.ID)
			cur, ok = parentOf(cur, byID)
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Order != nodes[j].Order {
			return nodes[i].Order < nodes[j].Order
		}
		return nodes[i].ID < nodes[j].ID
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Flatten is the inverse of BuildTree: a depth-first list of sections whose
// ParentID and Order are rewritten from the Forest's shape.
func Flatten(f Forest) []Section {
	out := make([]Section, 0, f.Size())
	var walk func(parentID string, nodes []*Node)
	walk = func(parentID string, nodes []*Node) {
		for i, n := range nodes {
			s := n.Section
			s.ParentID = parentID
			s.Order = i
			out = append(out, s)
			walk(s.ID, n.Children)
		}
	}
	walk("", f)
	return out
}

// Size returns the number of Nodes in the Forest.
func (f Forest) Size() int {
	var count int
	f.Walk(func(*Node, int) { count++ })
	return count
}

// Walk visits every Node depth-first, in order.
func (f Forest) Walk(fn func(n *Node, depth int)) {
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(f, 0)
}

// Find returns the Node with the given id, or nil.
func (f Forest) Find(id string) *Node {
	var found *Node
	f.Walk(func(n *Node, _ int) {
		if found == nil && n.ID == id {
			found = n
		}
	})
	return found
}

// IsDescendant reports whether id is in the subtree rooted at ancestorID (ancestorID excluded).
func (f Forest) IsDescendant(id, ancestorID string) bool {
	anc := f.Find(ancestorID)
	if anc == nil {
		return false
	}
	return Forest(anc.Children).Find(id) != nil
}

// Reparent moves sectionID under newParentID ("" moves it to the roots), appended after its new siblings.
// The receiver is left untouched.
func (f Forest) Reparent(sectionID, newParentID string) (Forest, error) {
	if f.Find(sectionID) == nil {
		return nil, ErrNotFound
	}
	if newParentID != "" {
		if newParentID == sectionID || f.IsDescendant(newParentID, sectionID) {
			return nil, ErrInvalidParent
		}
		if f.Find(newParentID) == nil {
			return nil, ErrInvalidParent
		}
	}

	flat := Flatten(f)
	last := -1
	for _, s := range flat {
		if s.ParentID == newParentID && s.ID != sectionID && s.Order > last {
			last = s.Order
		}
	}
	for i := range flat {
		if flat[i].ID == sectionID {
			flat[i].ParentID = newParentID
			flat[i].Order = last + 1
		}
	}

	nf, err := BuildTree(flat)
	if err != nil {
		return nil, err
	}
	return BuildTree(Flatten(nf)) // renumber old siblings
}

// Reorder sets the order of parentID's children ("" for the roots) to orderedIDs.
// The receiver is left untouched.
func (f Forest) Reorder(parentID string, orderedIDs []string) (Forest, error) {
	siblings := f
	if parentID != "" {
		p := f.Find(parentID)
		if p == nil {
			return nil, ErrNotFound
		}
		siblings = p.Children
	}
	if len(orderedIDs) != len(siblings) {
		return nil, ErrInvalidOrder
	}

	pos := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		if _, dup := pos[id]; dup {
			return nil, ErrInvalidOrder
		}
		pos[id] = i
	}
	for _, n := range siblings {
		if _, ok := pos[n.ID]; !ok {
			return nil, ErrInvalidOrder
		}
	}

	flat := Flatten(f)
	for i := range flat {
		if flat[i].ParentID == parentID {
			flat[i].Order = pos[flat[i].ID]
		}
	}
	return BuildTree(flat)
}
