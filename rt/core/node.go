package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Node is a scene graph object. Surface is the authored material (nil for
// groups, cameras and other material-less nodes); Active is the material the
// next draw will use.
type Node struct {
	ID        uuid.UUID
	Name      string
	Transform *Transform
	Mesh      *Geometry
	Surface   MaterialSpec
	Active    Material
	Visible   bool

	parent   *Node
	children []*Node
}

func NewNode(name string) *Node {
	return &Node{
		ID:        uuid.New(),
		Name:      name,
		Transform: NewTransform(),
		Visible:   true,
	}
}

// NewScene returns an empty root node.
func NewScene() *Node {
	return NewNode("scene")
}

// NewMesh returns a drawable node carrying geometry and an authored material.
func NewMesh(name string, geometry *Geometry, spec MaterialSpec) *Node {
	n := NewNode(name)
	n.Mesh = geometry
	n.SetMaterial(spec)
	return n
}

// SetMaterial replaces the authored material and makes it active.
func (n *Node) SetMaterial(spec MaterialSpec) {
	n.Surface = spec
	if spec == nil {
		n.Active = nil
		return
	}
	n.Active = spec
}

func (n *Node) HasMaterial() bool {
	return n.Surface != nil
}

// Add re-parents children under n.
func (n *Node) Add(children ...*Node) {
	for _, c := range children {
		if c == nil || c == n {
			continue
		}
		if c.parent != nil {
			c.parent.Remove(c)
		}
		c.parent = n
		n.children = append(n.children, c)
	}
}

func (n *Node) Remove(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

func (n *Node) Children() []*Node {
	return n.children
}

func (n *Node) Parent() *Node {
	return n.parent
}

// WorldMatrix composes the local transforms from the root down to n.
func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := mgl32.Ident4()
	if n.Transform != nil {
		m = n.Transform.Local()
	}
	for p := n.parent; p != nil; p = p.parent {
		if p.Transform != nil {
			m = p.Transform.Local().Mul4(m)
		}
	}
	return m
}

// ForEachNode visits root and every descendant exactly once, depth first.
func ForEachNode(root *Node, visit func(*Node)) {
	if root == nil {
		return
	}
	visit(root)
	for _, c := range root.children {
		ForEachNode(c, visit)
	}
}

// Collect flattens the subtree rooted at root in ForEachNode order.
func Collect(root *Node) []*Node {
	var out []*Node
	ForEachNode(root, func(n *Node) {
		out = append(out, n)
	})
	return out
}
