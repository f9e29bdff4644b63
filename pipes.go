package canopy

import (
	"errors"
	"fmt"
)

// RenderPipe turns a renderable's view into instructions.
type RenderPipe interface {
	AddRenderable(r Renderable, set *InstructionSet)
}

// InstructionPipe brackets a subtree with an effect's enter and exit
// instructions.
type InstructionPipe interface {
	Push(e Effect, n *Node, set *InstructionSet)
	Pop(e Effect, n *Node, set *InstructionSet)
}

// BuildPipe is notified when a build of a set starts and ends, so it can
// reset or flush per-build accumulation state.
type BuildPipe interface {
	BuildStart(set *InstructionSet)
	BuildEnd(set *InstructionSet)
}

// BlendModePipe assigns resolved blend modes to renderables as they are added.
type BlendModePipe interface {
	BuildPipe
	SetBlendMode(r Renderable, mode BlendMode, set *InstructionSet)
}

// LayerPipe emits the delegation instruction for a nested layer group.
type LayerPipe interface {
	AddLayerGroup(g *LayerGroup, set *InstructionSet)
}

// BatchBreaker is implemented by the batch pipe. Pipes that emit state
// instructions break the open batch first so ordering is preserved.
type BatchBreaker interface {
	Break(set *InstructionSet)
}

var (
	// ErrNoRenderPipe reports a view whose pipe key has no render pipe.
	ErrNoRenderPipe = errors.New("no render pipe registered")
	// ErrNoInstructionPipe reports an effect whose pipe key has no instruction pipe.
	ErrNoInstructionPipe = errors.New("no instruction pipe registered")
	// ErrPipeRegistered reports a second registration for the same key.
	ErrPipeRegistered = errors.New("pipe already registered")
)

// RenderPipes is the registry the compiler dispatches through. Batch,
// BlendMode, ColorMask and Layer are the fixed pipes every build talks to;
// view and effect pipes are looked up by pipe key.
type RenderPipes struct {
	Batch     BuildPipe
	BlendMode BlendModePipe
	ColorMask BuildPipe
	Layer     LayerPipe

	renderPipes      map[PipeKey]RenderPipe
	instructionPipes map[PipeKey]InstructionPipe
	builders         []BuildPipe
}

// NewRenderPipes creates a registry around the fixed pipes. None may be nil.
func NewRenderPipes(batch BuildPipe, blend BlendModePipe, colorMask BuildPipe, layer LayerPipe) *RenderPipes {
	if batch == nil || blend == nil || colorMask == nil || layer == nil {
		panic("canopy: batch, blend mode, color mask and layer pipes are required")
	}
	p := &RenderPipes{
		Batch:            batch,
		BlendMode:        blend,
		ColorMask:        colorMask,
		Layer:            layer,
		renderPipes:      make(map[PipeKey]RenderPipe),
		instructionPipes: make(map[PipeKey]InstructionPipe),
	}
	p.addBuilder(batch)
	p.addBuilder(blend)
	p.addBuilder(colorMask)
	return p
}

// RegisterRenderPipe registers the pipe that handles views tagged key.
// If pipe also implements BuildPipe it receives build start/end.
func (p *RenderPipes) RegisterRenderPipe(key PipeKey, pipe RenderPipe) error {
	if _, ok := p.renderPipes[key]; ok {
		return fmt.Errorf("render pipe %q: %w", key, ErrPipeRegistered)
	}
	p.renderPipes[key] = pipe
	if b, ok := pipe.(BuildPipe); ok {
		p.addBuilder(b)
	}
	return nil
}

// RegisterInstructionPipe registers the pipe that handles effects tagged key.
// If pipe also implements BuildPipe it receives build start/end.
func (p *RenderPipes) RegisterInstructionPipe(key PipeKey, pipe InstructionPipe) error {
	if _, ok := p.instructionPipes[key]; ok {
		return fmt.Errorf("instruction pipe %q: %w", key, ErrPipeRegistered)
	}
	p.instructionPipes[key] = pipe
	if b, ok := pipe.(BuildPipe); ok {
		p.addBuilder(b)
	}
	return nil
}

// RenderPipe returns the render pipe registered for key.
func (p *RenderPipes) RenderPipe(key PipeKey) (RenderPipe, bool) {
	rp, ok := p.renderPipes[key]
	return rp, ok
}

// InstructionPipe returns the instruction pipe registered for key.
func (p *RenderPipes) InstructionPipe(key PipeKey) (InstructionPipe, bool) {
	ip, ok := p.instructionPipes[key]
	return ip, ok
}

// Builders returns the pipes that receive build start/end, in call order.
func (p *RenderPipes) Builders() []BuildPipe {
	return p.builders
}

// addBuilder appends b unless the same pipe is already listed.
func (p *RenderPipes) addBuilder(b BuildPipe) {
	for _, cur := range p.builders {
		if cur == b {
			return
		}
	}
	p.builders = append(p.builders, b)
}

// mustRenderPipe panics when no pipe handles key; the registry is expected
// to be complete for every view in the scene.
func (p *RenderPipes) mustRenderPipe(key PipeKey) RenderPipe {
	rp, ok := p.renderPipes[key]
	if !ok {
		panic(fmt.Sprintf("canopy: %v for view type %q", ErrNoRenderPipe, key))
	}
	return rp
}

func (p *RenderPipes) mustInstructionPipe(key PipeKey) InstructionPipe {
	ip, ok := p.instructionPipes[key]
	if !ok {
		panic(fmt.Sprintf("canopy: %v for effect type %q", ErrNoInstructionPipe, key))
	}
	return ip
}

func (p *RenderPipes) buildStart(set *InstructionSet) {
	for _, b := range p.builders {
		b.BuildStart(set)
	}
}

func (p *RenderPipes) buildEnd(set *InstructionSet) {
	for _, b := range p.builders {
		b.BuildEnd(set)
	}
}

// Validate walks the tree under root, including detached mask nodes, and
// reports every view or effect whose pipe key has no registered pipe.
func (p *RenderPipes) Validate(root *Node) error {
	var errs []error
	seen := make(map[PipeKey]bool)
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.view != nil {
			key := n.view.PipeKey()
			if _, ok := p.renderPipes[key]; !ok && !seen[key] {
				seen[key] = true
				errs = append(errs, fmt.Errorf("node %q view %q: %w", n.Name, key, ErrNoRenderPipe))
			}
		}
		for _, e := range n.effects {
			key := e.PipeKey()
			if _, ok := p.instructionPipes[key]; !ok && !seen[key] {
				seen[key] = true
				errs = append(errs, fmt.Errorf("node %q effect %q: %w", n.Name, key, ErrNoInstructionPipe))
			}
			if m, ok := e.(*MaskEffect); ok && m.Mask != nil && m.Mask.Parent == nil {
				walk(m.Mask)
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
	return errors.Join(errs...)
}
