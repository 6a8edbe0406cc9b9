package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Group is a contiguous index range drawn with one entry of a
// CompositeMaterial.
type Group struct {
	Start         int
	Count         int
	MaterialIndex int
}

// Geometry is an indexed triangle list. Colors is optional and only read by
// materials with vertex colors enabled.
type Geometry struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Colors    []mgl32.Vec3
	Indices   []uint32
	Groups    []Group
}

func (g *Geometry) VertexCount() int {
	return len(g.Positions)
}

// GroupsOrAll returns the geometry groups, or a single group spanning every
// index when none are defined.
func (g *Geometry) GroupsOrAll() []Group {
	if len(g.Groups) > 0 {
		return g.Groups
	}
	return []Group{{Start: 0, Count: len(g.Indices), MaterialIndex: 0}}
}

// NewBoxGeometry builds an axis aligned box centered on the origin. Each face
// gets its own group in the order +X, -X, +Y, -Y, +Z, -Z so a six entry
// CompositeMaterial can color faces independently.
func NewBoxGeometry(width, height, depth float32) *Geometry {
	hx, hy, hz := width/2, height/2, depth/2
	type face struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{hx, -hy, hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {hx, hy, hz}}},
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-hx, -hy, -hz}, {-hx, -hy, hz}, {-hx, hy, hz}, {-hx, hy, -hz}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-hx, hy, hz}, {hx, hy, hz}, {hx, hy, -hz}, {-hx, hy, -hz}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, -hy, hz}, {-hx, -hy, hz}}},
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{hx, -hy, -hz}, {-hx, -hy, -hz}, {-hx, hy, -hz}, {hx, hy, -hz}}},
	}

	g := &Geometry{}
	for i, f := range faces {
		base := uint32(len(g.Positions))
		for _, c := range f.corners {
			g.Positions = append(g.Positions, c)
			g.Normals = append(g.Normals, f.normal)
			g.Colors = append(g.Colors, White)
		}
		start := len(g.Indices)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
		g.Groups = append(g.Groups, Group{Start: start, Count: 6, MaterialIndex: i})
	}
	return g
}

// NewPlaneGeometry builds a plane in the XY plane facing +Z.
func NewPlaneGeometry(width, height float32) *Geometry {
	hx, hy := width/2, height/2
	n := mgl32.Vec3{0, 0, 1}
	return &Geometry{
		Positions: []mgl32.Vec3{{-hx, -hy, 0}, {hx, -hy, 0}, {hx, hy, 0}, {-hx, hy, 0}},
		Normals:   []mgl32.Vec3{n, n, n, n},
		Colors:    []mgl32.Vec3{White, White, White, White},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
}
