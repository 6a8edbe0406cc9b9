package gpu

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/naga/ir"

	"github.com/gekko3d/deferred/rt/core"
	"github.com/gekko3d/deferred/rt/material"
	"github.com/gekko3d/deferred/rt/pack"
	"github.com/gekko3d/deferred/rt/shaders"
)

// rasterizer draws triangles into CPU pixels. Back faces (clockwise in
// screen space) are culled and triangles crossing the near plane are
// dropped rather than clipped.
type rasterizer struct {
	color     *pixels
	depth     []float32
	depthFunc DepthFunc
	compiled  map[string]*ir.Module
}

type clipVertex struct {
	clip   mgl32.Vec4
	screen mgl32.Vec3
	normal mgl32.Vec3
	color  mgl32.Vec3
}

func (r *rasterizer) drawScene(scene *core.Node, cam *core.Camera, cmd *Command) error {
	if scene == nil || cam == nil {
		return fmt.Errorf("scene pass needs a scene and a camera")
	}
	view := cam.ViewMatrix()
	proj := cam.ProjectionMatrix()
	seen := map[string]bool{}

	var err error
	core.ForEachNode(scene, func(n *core.Node) {
		if err != nil || !n.Visible || n.Mesh == nil || n.Active == nil {
			return
		}
		g := n.Mesh
		if len(g.Positions) == 0 || len(g.Indices) == 0 {
			return
		}
		mv := view.Mul4(n.WorldMatrix())
		normalMat := mv.Mat3().Inv().Transpose()

		for _, grp := range g.GroupsOrAll() {
			m := material.Resolve(n.Active, grp.MaterialIndex)
			if m == nil {
				continue
			}
			key := m.Program.Key()
			if _, ok := r.compiled[key]; !ok {
				err = fmt.Errorf("%w: %s", ErrNotCompiled, key)
				return
			}
			if !seen[key] {
				seen[key] = true
				cmd.Programs = append(cmd.Programs, key)
			}
			shade, serr := shaderFor(m)
			if serr != nil {
				err = serr
				return
			}
			cmd.Draws++

			end := min(grp.Start+grp.Count, len(g.Indices))
			for i := grp.Start; i+2 < end; i += 3 {
				var tri [3]clipVertex
				for k := 0; k < 3; k++ {
					tri[k] = r.vertex(g, g.Indices[i+k], mv, proj, normalMat)
				}
				cmd.Fragments += r.triangle(tri, m, shade)
			}
		}
	})
	return err
}

func (r *rasterizer) vertex(g *core.Geometry, idx uint32, mv, proj mgl32.Mat4, normalMat mgl32.Mat3) clipVertex {
	p := g.Positions[idx]
	clip := proj.Mul4(mv).Mul4x1(p.Vec4(1))

	var v clipVertex
	v.clip = clip
	if int(idx) < len(g.Normals) {
		v.normal = pack.SafeNormalize(normalMat.Mul3x1(g.Normals[idx]))
	}
	v.color = core.White
	if int(idx) < len(g.Colors) {
		v.color = g.Colors[idx]
	}
	if clip.W() > 0 {
		ndc := clip.Vec3().Mul(1 / clip.W())
		v.screen = mgl32.Vec3{
			(ndc.X()*0.5 + 0.5) * float32(r.color.w),
			(0.5 - ndc.Y()*0.5) * float32(r.color.h),
			ndc.Z(),
		}
	}
	return v
}

type fragmentShader func(normal, vertexColor mgl32.Vec3, ndcZ float32) [4]float32

// shaderFor returns the CPU mirror of a g-buffer fragment program.
func shaderFor(m *material.ShaderMaterial) (fragmentShader, error) {
	switch m.Program.Name() {
	case shaders.NormalDepth:
		return func(n, _ mgl32.Vec3, z float32) [4]float32 {
			return pack.EncodeNormalDepth(n, z, 1)
		}, nil
	case shaders.Color:
		u := m.Uniforms
		params := pack.ColorParams{
			Diffuse:          u.Color("diffuse"),
			Specular:         u.Color("specular"),
			Emissive:         u.Color("emissive"),
			Shininess:        u.Float("shininess"),
			WrapAround:       u.Float("wrapAround"),
			AdditiveSpecular: u.Float("additiveSpecular"),
		}
		useColor := m.Program.Defined(shaders.DefineUseColor)
		return func(_, vc mgl32.Vec3, _ float32) [4]float32 {
			if useColor {
				return pack.EncodeColorTexel(params, &vc)
			}
			return pack.EncodeColorTexel(params, nil)
		}, nil
	default:
		return nil, fmt.Errorf("gpu: program %s cannot draw meshes", m.Program.Key())
	}
}

// triangle rasterizes one triangle and returns the number of fragments
// written.
func (r *rasterizer) triangle(tri [3]clipVertex, m *material.ShaderMaterial, shade fragmentShader) int {
	for _, v := range tri {
		if v.clip.W() <= 0 {
			return 0
		}
	}
	a, b, c := tri[0].screen, tri[1].screen, tri[2].screen
	// screen y points down, so counter-clockwise front faces have negative area
	area := edge(a, b, c)
	if area >= 0 {
		return 0
	}

	minX := clampInt(int(math.Floor(float64(min(a.X(), b.X(), c.X())))), 0, r.color.w-1)
	maxX := clampInt(int(math.Ceil(float64(max(a.X(), b.X(), c.X())))), 0, r.color.w-1)
	minY := clampInt(int(math.Floor(float64(min(a.Y(), b.Y(), c.Y())))), 0, r.color.h-1)
	maxY := clampInt(int(math.Ceil(float64(max(a.Y(), b.Y(), c.Y())))), 0, r.color.h-1)

	written := 0
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, 0}
			w0 := edge(b, c, p) / area
			w1 := edge(c, a, p) / area
			w2 := edge(a, b, p) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.Z() + w1*b.Z() + w2*c.Z()
			if z < -1 || z > 1 {
				continue
			}
			depth := z*0.5 + 0.5
			i := y*r.color.w + x
			if m.DepthTest && !r.depthFunc.Test(depth, r.depth[i]) {
				continue
			}

			// perspective correct attribute weights
			p0 := w0 / tri[0].clip.W()
			p1 := w1 / tri[1].clip.W()
			p2 := w2 / tri[2].clip.W()
			sum := p0 + p1 + p2
			p0, p1, p2 = p0/sum, p1/sum, p2/sum

			normal := tri[0].normal.Mul(p0).Add(tri[1].normal.Mul(p1)).Add(tri[2].normal.Mul(p2))
			vc := tri[0].color.Mul(p0).Add(tri[1].color.Mul(p1)).Add(tri[2].color.Mul(p2))

			r.color.color[i] = shade(normal, vc, z)
			if m.DepthWrite {
				r.depth[i] = depth
			}
			written++
		}
	}
	return written
}

func edge(a, b, p mgl32.Vec3) float32 {
	return (b.X()-a.X())*(p.Y()-a.Y()) - (b.Y()-a.Y())*(p.X()-a.X())
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
