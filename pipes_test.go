package canopy

import (
	"errors"
	"testing"
)

func TestRegisterRenderPipeTwice(t *testing.T) {
	p := newRecPipes(t)
	err := p.RegisterRenderPipe(pipeTest, recRenderPipe{})
	if !errors.Is(err, ErrPipeRegistered) {
		t.Errorf("err = %v, want ErrPipeRegistered", err)
	}
}

func TestRegisterInstructionPipeTwice(t *testing.T) {
	p := newRecPipes(t)
	err := p.RegisterInstructionPipe(pipeTest, recEffectPipe{})
	if !errors.Is(err, ErrPipeRegistered) {
		t.Errorf("err = %v, want ErrPipeRegistered", err)
	}
}

func TestLookupPipes(t *testing.T) {
	p := newRecPipes(t)
	if _, ok := p.RenderPipe(pipeTest); !ok {
		t.Error("RenderPipe(test) not found")
	}
	if _, ok := p.InstructionPipe(pipeTest); !ok {
		t.Error("InstructionPipe(test) not found")
	}
	if _, ok := p.RenderPipe(PipeSprite); ok {
		t.Error("RenderPipe(sprite) should be missing")
	}
}

func TestBuildPipeRegisteredOnce(t *testing.T) {
	batch := NewBatchPipe(0)
	colorMask := NewColorMaskPipe(batch)
	p := NewRenderPipes(batch, NewBlendModeStatePipe(batch), colorMask, NewLayerGroupPipe(batch))
	if err := p.RegisterInstructionPipe(PipeColorMask, colorMask); err != nil {
		t.Fatal(err)
	}
	if n := len(p.Builders()); n != 3 {
		t.Errorf("len(Builders) = %d, want 3", n)
	}

	// A new BuildPipe registered as a render pipe joins the builders.
	extra := &buildingRenderPipe{}
	if err := p.RegisterRenderPipe(pipeTest, extra); err != nil {
		t.Fatal(err)
	}
	b := p.Builders()
	if len(b) != 4 || b[3] != BuildPipe(extra) {
		t.Errorf("Builders = %v, want the extra pipe last", b)
	}
}

type buildingRenderPipe struct{ starts, ends int }

func (p *buildingRenderPipe) AddRenderable(r Renderable, set *InstructionSet) {}
func (p *buildingRenderPipe) BuildStart(set *InstructionSet)                 { p.starts++ }
func (p *buildingRenderPipe) BuildEnd(set *InstructionSet)                   { p.ends++ }

func TestRegisteredBuildPipeSeesEveryBuild(t *testing.T) {
	p := newRecPipes(t)
	extra := &buildingRenderPipe{}
	if err := p.RegisterRenderPipe("extra", extra); err != nil {
		t.Fatal(err)
	}
	_, g := newRoot()
	BuildInstructions(g, p.RenderPipes)
	BuildInstructions(g, p.RenderPipes)
	if extra.starts != 2 || extra.ends != 2 {
		t.Errorf("starts/ends = %d/%d, want 2/2", extra.starts, extra.ends)
	}
}

func TestNewRenderPipesRequiresFixedPipes(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil layer pipe")
		}
	}()
	batch := NewBatchPipe(0)
	NewRenderPipes(batch, NewBlendModeStatePipe(batch), NewColorMaskPipe(batch), nil)
}

func TestValidateCompleteRegistry(t *testing.T) {
	r := NewRenderer(RendererConfig{})
	root := NewContainer("root")
	root.AddChild(NewSprite("s", nil))
	host := NewPolygon("host", square(4))
	host.SetMask(NewSprite("mask", nil))
	host.AddEffect(&FilterEffect{})
	host.AddEffect(&ColorMaskEffect{Mask: ColorMaskRed})
	root.AddChild(host)
	if err := r.Pipes().Validate(root); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestValidateWalksDetachedMask(t *testing.T) {
	r := NewRenderer(RendererConfig{})
	root := NewContainer("root")
	host := NewContainer("host")
	host.SetMask(viewNode("mask"))
	root.AddChild(host)
	if err := r.Pipes().Validate(root); !errors.Is(err, ErrNoRenderPipe) {
		t.Errorf("Validate = %v, want ErrNoRenderPipe from the mask's view", err)
	}
}

func square(size float64) []Vec2 {
	return []Vec2{{0, 0}, {size, 0}, {size, size}, {0, size}}
}
