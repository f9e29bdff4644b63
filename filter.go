package canopy

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Filter post-processes a subtree's rendered output. src and dst have the
// same size; Apply must not draw into src.
type Filter interface {
	Apply(src, dst *ebiten.Image)
}

// FilterEffect renders the node's subtree to an offscreen image, runs the
// filters over it in order and composites the result.
type FilterEffect struct {
	Filters []Filter
}

// PipeKey returns PipeFilter.
func (e *FilterEffect) PipeKey() PipeKey { return PipeFilter }

// FilterInstruction opens (Push) or closes a filter bracket.
type FilterInstruction struct {
	Push   bool
	Effect *FilterEffect
}

// PipeKey returns PipeFilter.
func (f *FilterInstruction) PipeKey() PipeKey { return PipeFilter }

// FilterPipe builds and executes FilterEffect brackets.
type FilterPipe struct {
	batch BatchBreaker
	stack []*ebiten.Image
	op    ebiten.DrawImageOptions
}

// NewFilterPipe creates a filter pipe that breaks batch around brackets.
func NewFilterPipe(batch BatchBreaker) *FilterPipe {
	return &FilterPipe{batch: batch}
}

// Push opens the bracket.
func (p *FilterPipe) Push(e Effect, n *Node, set *InstructionSet) {
	p.batch.Break(set)
	set.Add(&FilterInstruction{Push: true, Effect: e.(*FilterEffect)})
}

// Pop closes the bracket.
func (p *FilterPipe) Pop(e Effect, n *Node, set *InstructionSet) {
	p.batch.Break(set)
	set.Add(&FilterInstruction{Effect: e.(*FilterEffect)})
}

// Execute redirects drawing into an offscreen on push. On pop it runs the
// filter chain and draws the result into the outer target.
func (p *FilterPipe) Execute(inst Instruction, ctx *RenderContext) {
	fi := inst.(*FilterInstruction)
	if fi.Push {
		img := ctx.acquireOffscreen()
		p.stack = append(p.stack, img)
		ctx.pushTarget(img)
		return
	}

	ctx.popTarget()
	src := p.stack[len(p.stack)-1]
	p.stack[len(p.stack)-1] = nil
	p.stack = p.stack[:len(p.stack)-1]

	result, scratch := applyFilters(fi.Effect.Filters, src, &ctx.renderer.pool)

	p.op.GeoM.Reset()
	p.op.ColorScale.Reset()
	p.op.Blend = ebiten.BlendSourceOver
	ctx.Target().DrawImage(result, &p.op)

	ctx.releaseOffscreen(src)
	if scratch != nil {
		ctx.releaseOffscreen(scratch)
	}
	ctx.renderer.stats.DrawCalls += 1 + len(fi.Effect.Filters)
}

// applyFilters runs the chain on src, ping-ponging between src and one pooled
// scratch image. It returns the image holding the final result and the
// scratch image to release, which is nil for an empty chain.
func applyFilters(filters []Filter, src *ebiten.Image, pool *renderTexturePool) (result, scratch *ebiten.Image) {
	if len(filters) == 0 {
		return src, nil
	}
	b := src.Bounds()
	scratch = pool.Acquire(b.Dx(), b.Dy())

	current, next := src, scratch
	for _, f := range filters {
		next.Clear()
		f.Apply(current, next)
		current, next = next, current
	}
	return current, scratch
}

// --- Kage shaders ---

// Ebitengine colors are premultiplied; the shaders un-premultiply before
// working on color and premultiply their output.

const colorMatrixShaderSrc = `//kage:unit pixels
package main

var Matrix [20]float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	if c.a > 0 {
		c.rgb /= c.a
	}
	r := Matrix[0]*c.r + Matrix[1]*c.g + Matrix[2]*c.b + Matrix[3]*c.a + Matrix[4]
	g := Matrix[5]*c.r + Matrix[6]*c.g + Matrix[7]*c.b + Matrix[8]*c.a + Matrix[9]
	b := Matrix[10]*c.r + Matrix[11]*c.g + Matrix[12]*c.b + Matrix[13]*c.a + Matrix[14]
	a := Matrix[15]*c.r + Matrix[16]*c.g + Matrix[17]*c.b + Matrix[18]*c.a + Matrix[19]
	a = clamp(a, 0, 1)
	return vec4(clamp(r, 0, 1)*a, clamp(g, 0, 1)*a, clamp(b, 0, 1)*a, a)
}
`

const edgeShaderSrc = `//kage:unit pixels
package main

var EdgeColor vec4
var Inline float

func Fragment(dst vec4, src vec2, color vec4) vec4 {
	c := imageSrc0At(src)
	n := imageSrc0At(src + vec2(1, 0)).a
	n = min(n, imageSrc0At(src + vec2(-1, 0)).a)
	n = min(n, imageSrc0At(src + vec2(0, 1)).a)
	n = min(n, imageSrc0At(src + vec2(0, -1)).a)
	x := imageSrc0At(src + vec2(1, 0)).a
	x = max(x, imageSrc0At(src + vec2(-1, 0)).a)
	x = max(x, imageSrc0At(src + vec2(0, 1)).a)
	x = max(x, imageSrc0At(src + vec2(0, -1)).a)
	if Inline > 0 {
		if c.a > 0 && n == 0 {
			return EdgeColor
		}
		return c
	}
	if c.a == 0 && x > 0 {
		return EdgeColor
	}
	return c
}
`

// Shaders compile on first use. Scene rendering is single-threaded.
var shaderCache = map[string]*ebiten.Shader{}

func ensureShader(name, src string) *ebiten.Shader {
	if s, ok := shaderCache[name]; ok {
		return s
	}
	s, err := ebiten.NewShader([]byte(src))
	if err != nil {
		panic("canopy: failed to compile " + name + " shader: " + err.Error())
	}
	shaderCache[name] = s
	return s
}

// --- ColorMatrixFilter ---

// ColorMatrixFilter applies a 4x5 color matrix in row-major order:
// [R_r, R_g, R_b, R_a, R_offset, G_r, ...].
type ColorMatrixFilter struct {
	Matrix [20]float64

	matrix   [20]float32
	uniforms map[string]any
	shaderOp ebiten.DrawRectShaderOptions
}

// NewColorMatrixFilter creates a color matrix filter set to the identity.
func NewColorMatrixFilter() *ColorMatrixFilter {
	f := &ColorMatrixFilter{uniforms: make(map[string]any, 1)}
	f.Matrix[0], f.Matrix[6], f.Matrix[12], f.Matrix[18] = 1, 1, 1, 1
	return f
}

// SetBrightness offsets each color channel by b in [-1, 1].
func (f *ColorMatrixFilter) SetBrightness(b float64) {
	f.Matrix = [20]float64{
		1, 0, 0, 0, b,
		0, 1, 0, 0, b,
		0, 0, 1, 0, b,
		0, 0, 0, 1, 0,
	}
}

// SetContrast scales color around mid-gray. 1 is unchanged, 0 is flat gray.
func (f *ColorMatrixFilter) SetContrast(c float64) {
	t := (1 - c) / 2
	f.Matrix = [20]float64{
		c, 0, 0, 0, t,
		0, c, 0, 0, t,
		0, 0, c, 0, t,
		0, 0, 0, 1, 0,
	}
}

// SetSaturation blends toward luminance. 1 is unchanged, 0 is grayscale.
func (f *ColorMatrixFilter) SetSaturation(s float64) {
	sr := (1 - s) * 0.299
	sg := (1 - s) * 0.587
	sb := (1 - s) * 0.114
	f.Matrix = [20]float64{
		sr + s, sg, sb, 0, 0,
		sr, sg + s, sb, 0, 0,
		sr, sg, sb + s, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Apply draws src through the matrix into dst.
func (f *ColorMatrixFilter) Apply(src, dst *ebiten.Image) {
	for i, v := range f.Matrix {
		f.matrix[i] = float32(v)
	}
	f.uniforms["Matrix"] = f.matrix[:]
	b := src.Bounds()
	f.shaderOp.Images[0] = src
	f.shaderOp.Uniforms = f.uniforms
	dst.DrawRectShader(b.Dx(), b.Dy(), ensureShader("colorMatrix", colorMatrixShaderSrc), &f.shaderOp)
}

// --- BlurFilter ---

// BlurFilter approximates a blur of Radius pixels by repeated half-size
// downscales and linear upscales.
type BlurFilter struct {
	Radius int

	temps []*ebiten.Image
	op    ebiten.DrawImageOptions
}

// NewBlurFilter creates a blur filter. Negative radii are treated as zero.
func NewBlurFilter(radius int) *BlurFilter {
	return &BlurFilter{Radius: max(radius, 0)}
}

// Apply draws a blurred copy of src into dst.
func (f *BlurFilter) Apply(src, dst *ebiten.Image) {
	if f.Radius <= 0 {
		f.drawScaled(dst, src, ebiten.FilterNearest)
		return
	}

	passes := max(int(math.Ceil(math.Log2(float64(f.Radius)))), 1)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	for len(f.temps) < passes {
		f.temps = append(f.temps, nil)
	}
	for i := passes; i < len(f.temps); i++ {
		if f.temps[i] != nil {
			f.temps[i].Deallocate()
			f.temps[i] = nil
		}
	}
	f.temps = f.temps[:passes]

	current := src
	for i := range passes {
		w, h = max(w/2, 1), max(h/2, 1)
		if t := f.temps[i]; t == nil || t.Bounds().Dx() != w || t.Bounds().Dy() != h {
			if t != nil {
				t.Deallocate()
			}
			f.temps[i] = ebiten.NewImage(w, h)
		} else {
			t.Clear()
		}
		f.drawScaled(f.temps[i], current, ebiten.FilterLinear)
		current = f.temps[i]
	}
	for i := passes - 2; i >= 0; i-- {
		f.temps[i].Clear()
		f.drawScaled(f.temps[i], current, ebiten.FilterLinear)
		current = f.temps[i]
	}
	f.drawScaled(dst, current, ebiten.FilterLinear)
}

// drawScaled stretches src over all of dst.
func (f *BlurFilter) drawScaled(dst, src *ebiten.Image, filter ebiten.Filter) {
	sb, db := src.Bounds(), dst.Bounds()
	f.op.GeoM.Reset()
	f.op.ColorScale.Reset()
	f.op.GeoM.Scale(float64(db.Dx())/float64(sb.Dx()), float64(db.Dy())/float64(sb.Dy()))
	f.op.Filter = filter
	dst.DrawImage(src, &f.op)
}

// --- OutlineFilter ---

// OutlineFilter draws the source tinted with Color at eight offsets of
// Thickness pixels, then the source on top.
type OutlineFilter struct {
	Thickness int
	Color     Color

	op ebiten.DrawImageOptions
}

// NewOutlineFilter creates an outline filter.
func NewOutlineFilter(thickness int, c Color) *OutlineFilter {
	return &OutlineFilter{Thickness: thickness, Color: c}
}

// Apply draws the outline and the source into dst.
func (f *OutlineFilter) Apply(src, dst *ebiten.Image) {
	t := float64(f.Thickness)
	offsets := [8][2]float64{
		{-t, 0}, {t, 0}, {0, -t}, {0, t},
		{-t, -t}, {t, -t}, {-t, t}, {t, t},
	}
	r, g, b, a := premultiplied(f.Color, 1, ColorMaskAll)
	for _, off := range offsets {
		f.op.GeoM.Reset()
		f.op.ColorScale.Reset()
		f.op.GeoM.Translate(off[0], off[1])
		f.op.ColorScale.Scale(r, g, b, a)
		dst.DrawImage(src, &f.op)
	}
	f.op.GeoM.Reset()
	f.op.ColorScale.Reset()
	dst.DrawImage(src, &f.op)
}

// --- Pixel-perfect edges ---

// PixelEdgeFilter recolors a one-pixel edge with a Kage shader. As an
// outline it paints transparent pixels bordering opaque ones; as an inline
// it paints opaque pixels bordering transparent ones.
type PixelEdgeFilter struct {
	Color  Color
	Inline bool

	color    [4]float32
	uniforms map[string]any
	shaderOp ebiten.DrawRectShaderOptions
}

// NewPixelPerfectOutlineFilter creates a one-pixel outline filter.
func NewPixelPerfectOutlineFilter(c Color) *PixelEdgeFilter {
	return &PixelEdgeFilter{Color: c, uniforms: make(map[string]any, 2)}
}

// NewPixelPerfectInlineFilter creates a one-pixel inline filter.
func NewPixelPerfectInlineFilter(c Color) *PixelEdgeFilter {
	return &PixelEdgeFilter{Color: c, Inline: true, uniforms: make(map[string]any, 2)}
}

// Apply draws src with its edge recolored into dst.
func (f *PixelEdgeFilter) Apply(src, dst *ebiten.Image) {
	f.color[0], f.color[1], f.color[2], f.color[3] = premultiplied(f.Color, 1, ColorMaskAll)
	f.uniforms["EdgeColor"] = f.color[:]
	inline := float32(0)
	if f.Inline {
		inline = 1
	}
	f.uniforms["Inline"] = inline
	b := src.Bounds()
	f.shaderOp.Images[0] = src
	f.shaderOp.Uniforms = f.uniforms
	dst.DrawRectShader(b.Dx(), b.Dy(), ensureShader("edge", edgeShaderSrc), &f.shaderOp)
}

// --- CustomShaderFilter ---

// CustomShaderFilter runs a user Kage shader. Images[0] is filled with the
// source; Images[1] and Images[2] may carry extra textures.
type CustomShaderFilter struct {
	Shader   *ebiten.Shader
	Uniforms map[string]any
	Images   [3]*ebiten.Image

	shaderOp ebiten.DrawRectShaderOptions
}

// NewCustomShaderFilter creates a filter around shader.
func NewCustomShaderFilter(shader *ebiten.Shader) *CustomShaderFilter {
	return &CustomShaderFilter{Shader: shader, Uniforms: make(map[string]any)}
}

// Apply runs the shader with src as Images[0].
func (f *CustomShaderFilter) Apply(src, dst *ebiten.Image) {
	b := src.Bounds()
	f.shaderOp.Images[0] = src
	f.shaderOp.Images[1] = f.Images[1]
	f.shaderOp.Images[2] = f.Images[2]
	f.shaderOp.Uniforms = f.Uniforms
	dst.DrawRectShader(b.Dx(), b.Dy(), f.Shader, &f.shaderOp)
}
