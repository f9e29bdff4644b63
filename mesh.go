package canopy

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// MeshInstruction draws one mesh renderable with DrawTriangles.
type MeshInstruction struct {
	Renderable Renderable
}

// PipeKey returns PipeMesh.
func (m *MeshInstruction) PipeKey() PipeKey { return PipeMesh }

// MeshPipe is the render pipe and executor for MeshView. Meshes cannot join
// sprite batches, so each one breaks the open batch.
type MeshPipe struct {
	batch BatchBreaker
}

// NewMeshPipe creates a mesh pipe that breaks batch before each mesh.
func NewMeshPipe(batch BatchBreaker) *MeshPipe {
	return &MeshPipe{batch: batch}
}

// AddRenderable emits a MeshInstruction for r.
func (p *MeshPipe) AddRenderable(r Renderable, set *InstructionSet) {
	if _, ok := r.View().(*MeshView); !ok {
		panic("canopy: mesh pipe received a non-mesh view")
	}
	set.TrackRenderable(r)
	p.batch.Break(set)
	set.Add(&MeshInstruction{Renderable: r})
}

// Execute transforms the mesh vertices and draws them.
func (p *MeshPipe) Execute(inst Instruction, ctx *RenderContext) {
	r := inst.(*MeshInstruction).Renderable
	v := r.View().(*MeshView)
	if len(v.Vertices) == 0 || len(v.Indices) == 0 {
		return
	}
	img := v.Image
	if img == nil {
		img = WhitePixel
	}

	dst := v.ensureTransformed()
	t := multiplyAffine(ctx.transform, r.RelativeTransform())
	cr, cg, cb, ca := premultiplied(v.Tint, ctx.alpha*r.RelativeAlpha(), ctx.colorMask)
	transformVertices(v.Vertices, dst, t, cr, cg, cb, ca)

	var triOp ebiten.DrawTrianglesOptions
	triOp.Blend = ctx.blend.EbitenBlend()
	triOp.ColorScaleMode = ebiten.ColorScaleModePremultipliedAlpha
	ctx.Target().DrawTriangles(dst, v.Indices, img, &triOp)

	ctx.renderer.stats.DrawCalls++
}

// ensureTransformed grows the transform buffer to fit the vertices, using a
// high-water mark (never shrinks).
func (v *MeshView) ensureTransformed() []ebiten.Vertex {
	need := len(v.Vertices)
	if cap(v.transformed) < need {
		v.transformed = make([]ebiten.Vertex, need)
	}
	v.transformed = v.transformed[:need]
	return v.transformed
}

// transformVertices applies an affine transform and a premultiplied color to
// src vertices, writing the result into dst. dst must be at least len(src).
//
// newX = a*x + c*y + tx, newY = b*x + d*y + ty
func transformVertices(src, dst []ebiten.Vertex, transform [6]float64, cr, cg, cb, ca float32) {
	a, b, c, d, tx, ty := transform[0], transform[1], transform[2], transform[3], transform[4], transform[5]
	for i := range src {
		s := &src[i]
		ox := float64(s.DstX)
		oy := float64(s.DstY)
		dst[i] = ebiten.Vertex{
			DstX:   float32(a*ox + c*oy + tx),
			DstY:   float32(b*ox + d*oy + ty),
			SrcX:   s.SrcX,
			SrcY:   s.SrcY,
			ColorR: s.ColorR * cr,
			ColorG: s.ColorG * cg,
			ColorB: s.ColorB * cb,
			ColorA: s.ColorA * ca,
		}
	}
}

// computeMeshAABB scans DstX/DstY of the given vertices and returns
// the axis-aligned bounding box in local space.
func computeMeshAABB(verts []ebiten.Vertex) Rect {
	if len(verts) == 0 {
		return Rect{}
	}
	minX := float64(verts[0].DstX)
	minY := float64(verts[0].DstY)
	maxX := minX
	maxY := minY
	for i := 1; i < len(verts); i++ {
		x := float64(verts[i].DstX)
		y := float64(verts[i].DstY)
		minX = min(minX, x)
		maxX = max(maxX, x)
		minY = min(minY, y)
		maxY = max(maxY, y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// NewPolygon creates an untextured convex polygon mesh drawn with
// WhitePixel. Color comes from the view's Tint.
func NewPolygon(name string, points []Vec2) *Node {
	verts, inds := buildPolygonFan(points)
	return NewMesh(name, WhitePixel, verts, inds)
}

// buildPolygonFan generates vertices and indices for a fan-triangulated
// polygon: N vertices, 3*(N-2) indices.
func buildPolygonFan(points []Vec2) ([]ebiten.Vertex, []uint16) {
	n := len(points)
	if n < 3 {
		return nil, nil
	}

	verts := make([]ebiten.Vertex, n)
	inds := make([]uint16, (n-2)*3)
	for i, p := range points {
		verts[i] = ebiten.Vertex{
			DstX:   float32(p.X),
			DstY:   float32(p.Y),
			SrcX:   0.5, // center of the white pixel
			SrcY:   0.5,
			ColorR: 1,
			ColorG: 1,
			ColorB: 1,
			ColorA: 1,
		}
	}

	// Vertex 0 is the hub.
	for i := 0; i < n-2; i++ {
		inds[i*3+0] = 0
		inds[i*3+1] = uint16(i + 1)
		inds[i*3+2] = uint16(i + 2)
	}
	return verts, inds
}
