package canopy

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// RendererConfig configures a Renderer. Zero values select the defaults.
type RendererConfig struct {
	// ClearColor fills the target before drawing. The zero Color leaves the
	// target untouched.
	ClearColor Color
	// Debug enables tree checks and per-frame stats logging.
	Debug bool
	// BatchSize caps the number of sprites per batch instruction.
	// Default 4096.
	BatchSize int
	// InstructionCap is the initial capacity of each group's instruction set.
	// Default 64.
	InstructionCap int
}

const defaultBatchSize = 4096

// RenderStats reports what the last frame built and drew.
type RenderStats struct {
	GroupsRebuilt int
	Instructions  int
	Renderables   int
	Batches       int
	DrawCalls     int
}

// InstructionExecutor draws one kind of instruction. Executors are looked up
// by the instruction's PipeKey.
type InstructionExecutor interface {
	Execute(inst Instruction, ctx *RenderContext)
}

// RenderContext is the mutable state threaded through execution of
// instruction sets.
type RenderContext struct {
	renderer *Renderer
	targets  []*ebiten.Image

	view          [6]float64 // camera view matrix
	transform     [6]float64 // view * current group's world transform
	alpha         float64
	blend         BlendMode
	colorMask     ColorMask
	baseColorMask ColorMask // mask in effect when the current group was entered

	masks []maskFrame
}

type maskFrame struct {
	mask    *ebiten.Image
	content *ebiten.Image

	// group transform and alpha to restore when the mask content ends
	transform [6]float64
	alpha     float64
}

// Target returns the image currently drawn into.
func (c *RenderContext) Target() *ebiten.Image {
	return c.targets[len(c.targets)-1]
}

// Transform returns the current group's transform including the camera.
func (c *RenderContext) Transform() [6]float64 { return c.transform }

// Alpha returns the current group's world alpha.
func (c *RenderContext) Alpha() float64 { return c.alpha }

// BlendMode returns the active blend mode.
func (c *RenderContext) BlendMode() BlendMode { return c.blend }

// ColorMask returns the active channel mask.
func (c *RenderContext) ColorMask() ColorMask { return c.colorMask }

func (c *RenderContext) pushTarget(img *ebiten.Image) {
	c.targets = append(c.targets, img)
}

func (c *RenderContext) popTarget() *ebiten.Image {
	img := c.targets[len(c.targets)-1]
	c.targets[len(c.targets)-1] = nil
	c.targets = c.targets[:len(c.targets)-1]
	return img
}

// acquireOffscreen returns a cleared pooled image at least as large as the
// current target.
func (c *RenderContext) acquireOffscreen() *ebiten.Image {
	b := c.Target().Bounds()
	return c.renderer.pool.Acquire(b.Dx(), b.Dy())
}

func (c *RenderContext) releaseOffscreen(img *ebiten.Image) {
	c.renderer.pool.Release(img)
}

// Renderer owns the pipe registry and the executors, and drives update,
// build and execution for a scene root.
type Renderer struct {
	config    RendererConfig
	pipes     *RenderPipes
	executors map[PipeKey]InstructionExecutor

	pool  renderTexturePool
	ctx   RenderContext
	stats RenderStats
}

// NewRenderer creates a renderer with the built-in pipes registered.
func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.InstructionCap <= 0 {
		cfg.InstructionCap = defaultInstructionCap
	}
	if cfg.Debug {
		SetDebugMode(true)
	}

	r := &Renderer{
		config:    cfg,
		executors: make(map[PipeKey]InstructionExecutor),
	}
	r.ctx.renderer = r

	batch := NewBatchPipe(cfg.BatchSize)
	blend := NewBlendModeStatePipe(batch)
	colorMask := NewColorMaskPipe(batch)
	layer := NewLayerGroupPipe(batch)
	r.pipes = NewRenderPipes(batch, blend, colorMask, layer)

	sprite := NewSpritePipe(batch)
	mesh := NewMeshPipe(batch)
	mask := NewMaskPipe(batch, r.pipes)
	filter := NewFilterPipe(batch)

	r.mustRegister(r.pipes.RegisterRenderPipe(PipeSprite, sprite))
	r.mustRegister(r.pipes.RegisterRenderPipe(PipeMesh, mesh))
	r.mustRegister(r.pipes.RegisterInstructionPipe(PipeMask, mask))
	r.mustRegister(r.pipes.RegisterInstructionPipe(PipeFilter, filter))
	r.mustRegister(r.pipes.RegisterInstructionPipe(PipeColorMask, colorMask))

	r.mustRegister(r.RegisterExecutor(PipeBatch, batch))
	r.mustRegister(r.RegisterExecutor(PipeBlendMode, blend))
	r.mustRegister(r.RegisterExecutor(PipeColorMask, colorMask))
	r.mustRegister(r.RegisterExecutor(PipeLayer, layer))
	r.mustRegister(r.RegisterExecutor(PipeMesh, mesh))
	r.mustRegister(r.RegisterExecutor(PipeMask, mask))
	r.mustRegister(r.RegisterExecutor(PipeFilter, filter))
	return r
}

func (r *Renderer) mustRegister(err error) {
	if err != nil {
		panic("canopy: " + err.Error())
	}
}

// Pipes returns the registry used for builds. Custom views and effects
// register their pipes here.
func (r *Renderer) Pipes() *RenderPipes {
	return r.pipes
}

// RegisterExecutor registers the executor for instructions tagged key.
func (r *Renderer) RegisterExecutor(key PipeKey, e InstructionExecutor) error {
	if _, ok := r.executors[key]; ok {
		return fmt.Errorf("executor %q: %w", key, ErrPipeRegistered)
	}
	r.executors[key] = e
	return nil
}

// Stats returns the stats of the last Prepare or Render call.
func (r *Renderer) Stats() RenderStats {
	return r.stats
}

// Prepare makes root a layer root, runs the update pass and rebuilds every
// group whose structure changed. Render calls it; it is exported so scenes
// can be compiled without drawing.
func (r *Renderer) Prepare(root *Node) *LayerGroup {
	r.stats = RenderStats{}
	g := root.EnableLayerGroup()
	updateGroup(g, identityTransform, 1, BlendNormal, false)
	r.rebuild(g)
	return g
}

func (r *Renderer) rebuild(g *LayerGroup) {
	if g.structureDidChange {
		g.ensureInstructionSet(r.config.InstructionCap)
		BuildInstructions(g, r.pipes)
		g.structureDidChange = false
		r.stats.GroupsRebuilt++
		if r.config.Debug {
			debugLogRebuild(g)
		}
	}
	for _, child := range g.childGroups {
		r.rebuild(child)
	}
}

// Render updates and compiles the scene under root, then draws it into
// target. cam may be nil for an identity view.
func (r *Renderer) Render(target *ebiten.Image, root *Node, cam *Camera) {
	var ds debugStats
	t0 := time.Now()

	g := r.Prepare(root)
	t1 := time.Now()

	if r.config.ClearColor != (Color{}) {
		target.Fill(r.config.ClearColor.toRGBA())
	}

	ctx := &r.ctx
	ctx.targets = append(ctx.targets[:0], target)
	ctx.masks = ctx.masks[:0]
	ctx.view = identityTransform
	if cam != nil {
		ctx.view = cam.computeViewMatrix()
	}
	ctx.colorMask = ColorMaskAll
	r.executeGroup(g, ctx)
	ctx.targets[0] = nil
	ctx.targets = ctx.targets[:0]
	t2 := time.Now()

	if r.config.Debug {
		ds.prepareTime = t1.Sub(t0)
		ds.executeTime = t2.Sub(t1)
		ds.stats = r.stats
		debugLog(ds)
	}
}

// executeGroup runs g's instruction set under g's transform. The blend mode
// starts at normal and the color mask is restored when the group ends.
func (r *Renderer) executeGroup(g *LayerGroup, ctx *RenderContext) {
	savedTransform, savedAlpha := ctx.transform, ctx.alpha
	savedBlend := ctx.blend
	savedMask, savedBase := ctx.colorMask, ctx.baseColorMask

	ctx.transform = multiplyAffine(ctx.view, g.worldTransform)
	ctx.alpha = g.worldAlpha
	ctx.blend = BlendNormal
	ctx.baseColorMask = ctx.colorMask

	set := g.InstructionSet()
	r.stats.Instructions += set.Len()
	r.stats.Renderables += len(set.Renderables())
	for _, inst := range set.Instructions() {
		e, ok := r.executors[inst.PipeKey()]
		if !ok {
			panic(fmt.Sprintf("canopy: no executor registered for instruction %q", inst.PipeKey()))
		}
		e.Execute(inst, ctx)
	}

	ctx.transform, ctx.alpha = savedTransform, savedAlpha
	ctx.blend = savedBlend
	ctx.colorMask, ctx.baseColorMask = savedMask, savedBase
}
