package main

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/deferred/rt/core"
)

type demoScene struct {
	root   *core.Node
	camera *core.Camera
	cube   *core.Node
	spin   float32
}

// newDemoScene is a floor and a cube with one material per face, plus a
// vertex colored cube and a metal pillar under a group node.
func newDemoScene(aspect float32) *demoScene {
	root := core.NewScene()

	floor := core.NewMesh("floor", core.NewPlaneGeometry(12, 12), core.NewLambertMaterial(core.HexColor(0x808080), core.Black))
	floor.Transform.Rotation = mgl32.QuatRotate(mgl32.DegToRad(-90), mgl32.Vec3{1, 0, 0})
	root.Add(floor)

	faces := make([]core.MaterialSpec, 6)
	for i, hex := range []uint32{0xd04040, 0x40d040, 0x4040d0, 0xd0d040, 0x40d0d0, 0xd040d0} {
		faces[i] = core.NewPhongMaterial(core.HexColor(hex), core.Black, core.HexColor(0x222222), 30)
	}
	cube := core.NewMesh("cube", core.NewBoxGeometry(1.5, 1.5, 1.5), core.NewCompositeMaterial(faces...))
	cube.Transform.Position = mgl32.Vec3{0, 1, 0}
	root.Add(cube)

	group := core.NewNode("props")
	group.Transform.Position = mgl32.Vec3{2.5, 0, -1}
	root.Add(group)

	tinted := core.NewBoxGeometry(1, 1, 1)
	for i := range tinted.Colors {
		tinted.Colors[i] = mgl32.Vec3{float32(i%4) / 3, float32(i%3) / 2, 1}
	}
	painted := &core.SurfaceMaterial{Name: "painted", Color: core.White, VertexColors: core.VertexColors}
	p := core.NewMesh("painted", tinted, painted)
	p.Transform.Position = mgl32.Vec3{0, 0.5, 0}
	group.Add(p)

	metal := core.NewPhongMaterial(core.HexColor(0xc0a060), core.Black, core.HexColor(0xffffff), 80)
	metal.Metal = true
	m := core.NewMesh("metal", core.NewBoxGeometry(0.8, 2, 0.8), metal)
	m.Transform.Position = mgl32.Vec3{-5, 1, 0}
	group.Add(m)

	cam := core.NewCamera(60, aspect, 0.1, 100)
	cam.Position = mgl32.Vec3{0, 3, 8}
	cam.LookAt(mgl32.Vec3{0, 1, 0})

	return &demoScene{root: root, camera: cam, cube: cube}
}

// update spins the cube.
func (s *demoScene) update(dt float64) {
	s.spin += float32(dt) * 0.8
	s.cube.Transform.Rotation = mgl32.QuatRotate(s.spin, mgl32.Vec3{0, 1, 0})
}
