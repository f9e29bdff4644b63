package canopy

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// Batch draws a run of sprites that share a source image in one
// DrawTriangles32 call.
type Batch struct {
	Image       *ebiten.Image
	Renderables []Renderable
}

// PipeKey returns PipeBatch.
func (b *Batch) PipeKey() PipeKey { return PipeBatch }

// BatchPipe accumulates sprite renderables into Batch instructions. Any pipe
// that emits a state instruction calls Break first so the open batch is not
// extended past it.
type BatchPipe struct {
	current  *Batch
	capacity int

	// Execution scratch buffers, reused across batches.
	verts []ebiten.Vertex
	inds  []uint32
}

// NewBatchPipe creates a batch pipe that caps batches at capacity sprites.
func NewBatchPipe(capacity int) *BatchPipe {
	if capacity <= 0 {
		capacity = defaultBatchSize
	}
	return &BatchPipe{capacity: capacity}
}

// BuildStart drops any batch left open by a previous build.
func (p *BatchPipe) BuildStart(set *InstructionSet) {
	p.current = nil
}

// BuildEnd closes the open batch.
func (p *BatchPipe) BuildEnd(set *InstructionSet) {
	p.Break(set)
}

// Break closes the open batch. The next sprite starts a new one.
func (p *BatchPipe) Break(set *InstructionSet) {
	p.current = nil
}

// AddToBatch appends r to the open batch when it draws from img and the batch
// is still the last instruction of set; otherwise a new batch is started.
func (p *BatchPipe) AddToBatch(r Renderable, img *ebiten.Image, set *InstructionSet) {
	b := p.current
	if b == nil || b.Image != img || len(b.Renderables) >= p.capacity || set.Last() != Instruction(b) {
		b = &Batch{Image: img}
		set.Add(b)
		p.current = b
	}
	b.Renderables = append(b.Renderables, r)
}

// Execute draws the batch into the current target.
func (p *BatchPipe) Execute(inst Instruction, ctx *RenderContext) {
	b := inst.(*Batch)
	if len(b.Renderables) == 0 {
		return
	}

	p.verts = p.verts[:0]
	p.inds = p.inds[:0]
	for _, r := range b.Renderables {
		p.appendSpriteQuad(r, b.Image, ctx)
	}

	var triOp ebiten.DrawTrianglesOptions
	triOp.Blend = ctx.blend.EbitenBlend()
	triOp.ColorScaleMode = ebiten.ColorScaleModePremultipliedAlpha
	ctx.Target().DrawTriangles32(p.verts, p.inds, b.Image, &triOp)

	ctx.renderer.stats.Batches++
	ctx.renderer.stats.DrawCalls++
}

// appendSpriteQuad appends 4 vertices and 6 indices for one sprite.
func (p *BatchPipe) appendSpriteQuad(r Renderable, img *ebiten.Image, ctx *RenderContext) {
	v, _ := r.View().(*SpriteView)
	tint := ColorWhite
	if v != nil {
		tint = v.Tint
	}

	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	// 4 local positions: TL, TR, BL, BR
	lx := [4]float64{0, w, 0, w}
	ly := [4]float64{0, 0, h, h}

	// Source coordinates are in the image's own space, so SubImages keep
	// their offset into the parent.
	rx := float32(bounds.Min.X)
	ry := float32(bounds.Min.Y)
	rw := float32(w)
	rh := float32(h)
	sx := [4]float32{rx, rx + rw, rx, rx + rw}
	sy := [4]float32{ry, ry, ry + rh, ry + rh}

	t := multiplyAffine(ctx.transform, r.RelativeTransform())
	a, b, c, d, tx, ty := t[0], t[1], t[2], t[3], t[4], t[5]

	cr, cg, cb, ca := premultiplied(tint, ctx.alpha*r.RelativeAlpha(), ctx.colorMask)

	base := uint32(len(p.verts))
	for i := 0; i < 4; i++ {
		p.verts = append(p.verts, ebiten.Vertex{
			DstX:   float32(a*lx[i] + c*ly[i] + tx),
			DstY:   float32(b*lx[i] + d*ly[i] + ty),
			SrcX:   sx[i],
			SrcY:   sy[i],
			ColorR: cr,
			ColorG: cg,
			ColorB: cb,
			ColorA: ca,
		})
	}

	// Two triangles: TL-TR-BL, TR-BR-BL
	p.inds = append(p.inds,
		base+0, base+1, base+2,
		base+1, base+3, base+2,
	)
}

// premultiplied returns the tint scaled by alpha, premultiplied, with the
// channels excluded by mask zeroed.
func premultiplied(tint Color, alpha float64, mask ColorMask) (r, g, b, a float32) {
	a = float32(tint.A * alpha)
	r = float32(tint.R) * a
	g = float32(tint.G) * a
	b = float32(tint.B) * a
	if mask&ColorMaskRed == 0 {
		r = 0
	}
	if mask&ColorMaskGreen == 0 {
		g = 0
	}
	if mask&ColorMaskBlue == 0 {
		b = 0
	}
	if mask&ColorMaskAlpha == 0 {
		a = 0
	}
	return r, g, b, a
}

// SpritePipe is the render pipe for SpriteView. Sprites go straight into the
// batch pipe.
type SpritePipe struct {
	batch *BatchPipe
}

// NewSpritePipe creates a sprite pipe feeding batch.
func NewSpritePipe(batch *BatchPipe) *SpritePipe {
	return &SpritePipe{batch: batch}
}

// AddRenderable adds r's sprite to the open batch.
func (p *SpritePipe) AddRenderable(r Renderable, set *InstructionSet) {
	v, ok := r.View().(*SpriteView)
	if !ok {
		panic("canopy: sprite pipe received a non-sprite view")
	}
	set.TrackRenderable(r)
	p.batch.AddToBatch(r, v.image(), set)
}
