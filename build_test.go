package canopy

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// --- Recording pipes ---

const pipeTest PipeKey = "test"

// testView dispatches to the recording render pipe.
type testView struct{}

func (testView) PipeKey() PipeKey { return pipeTest }

// testEffect dispatches to the recording instruction pipe.
type testEffect struct{ name string }

func (e *testEffect) PipeKey() PipeKey { return pipeTest }

// recInst is an instruction that only carries a label.
type recInst struct{ label string }

func (r *recInst) PipeKey() PipeKey { return pipeTest }

func renderableName(r Renderable) string {
	switch r := r.(type) {
	case *Node:
		return r.Name
	case *LayerRenderable:
		return "proxy:" + r.Original().Name
	}
	return "?"
}

type recRenderPipe struct{}

func (recRenderPipe) AddRenderable(r Renderable, set *InstructionSet) {
	set.TrackRenderable(r)
	set.Add(&recInst{label: "draw:" + renderableName(r)})
}

type recEffectPipe struct{}

func (recEffectPipe) Push(e Effect, n *Node, set *InstructionSet) {
	set.Add(&recInst{label: "push:" + e.(*testEffect).name})
}

func (recEffectPipe) Pop(e Effect, n *Node, set *InstructionSet) {
	set.Add(&recInst{label: "pop:" + e.(*testEffect).name})
}

// recBuildPipe logs build start/end into a shared event list.
type recBuildPipe struct {
	name   string
	events *[]string
}

func (p *recBuildPipe) BuildStart(set *InstructionSet) { *p.events = append(*p.events, p.name+".start") }
func (p *recBuildPipe) BuildEnd(set *InstructionSet)   { *p.events = append(*p.events, p.name+".end") }

// recBlendPipe records each mode it is handed, without emitting anything.
type recBlendPipe struct {
	recBuildPipe
	modes map[string]BlendMode
}

func (p *recBlendPipe) SetBlendMode(r Renderable, mode BlendMode, set *InstructionSet) {
	p.modes[renderableName(r)] = mode
}

type recLayerPipe struct{}

func (recLayerPipe) AddLayerGroup(g *LayerGroup, set *InstructionSet) {
	set.Add(&recInst{label: "layer:" + g.Root().Name})
}

type recPipes struct {
	*RenderPipes
	events []string
	blend  *recBlendPipe
}

func newRecPipes(t *testing.T) *recPipes {
	t.Helper()
	rp := &recPipes{}
	batch := &recBuildPipe{name: "batch", events: &rp.events}
	rp.blend = &recBlendPipe{recBuildPipe: recBuildPipe{name: "blend", events: &rp.events}, modes: map[string]BlendMode{}}
	colorMask := &recBuildPipe{name: "colorMask", events: &rp.events}
	rp.RenderPipes = NewRenderPipes(batch, rp.blend, colorMask, recLayerPipe{})
	if err := rp.RegisterRenderPipe(pipeTest, recRenderPipe{}); err != nil {
		t.Fatalf("RegisterRenderPipe: %v", err)
	}
	if err := rp.RegisterInstructionPipe(pipeTest, recEffectPipe{}); err != nil {
		t.Fatalf("RegisterInstructionPipe: %v", err)
	}
	return rp
}

func labels(set *InstructionSet) []string {
	out := make([]string, 0, set.Len())
	for _, inst := range set.Instructions() {
		out = append(out, inst.(*recInst).label)
	}
	return out
}

func assertLabels(t *testing.T, set *InstructionSet, want ...string) {
	t.Helper()
	got := labels(set)
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("instructions = [%s], want [%s]", strings.Join(got, " "), strings.Join(want, " "))
	}
}

func viewNode(name string) *Node {
	n := NewContainer(name)
	n.SetView(testView{})
	return n
}

func newRoot() (*Node, *LayerGroup) {
	root := NewContainer("root")
	return root, root.EnableLayerGroup()
}

// --- Scenarios ---

func TestBuildTwoChildren(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	root.AddChild(viewNode("a"))
	root.AddChild(viewNode("b"))

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:a", "draw:b")
}

func TestBuildDepthSort(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	root.SortChildren = true
	for _, z := range []int{3, 1, 2} {
		c := viewNode("z" + string(rune('0'+z)))
		c.ZIndex = z
		root.AddChild(c)
	}

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:z1", "draw:z2", "draw:z3")

	order := root.Children()
	for i, want := range []int{1, 2, 3} {
		if order[i].ZIndex != want {
			t.Errorf("children[%d].ZIndex = %d, want %d", i, order[i].ZIndex, want)
		}
	}
}

func TestDepthSortStableForEqualZ(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	root.SortChildren = true
	for _, name := range []string{"a", "b", "c"} {
		root.AddChild(viewNode(name))
	}
	root.ChildAt(0).ZIndex = 1

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:b", "draw:c", "draw:a")
}

func TestSetSortChildrenMarksGroup(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	for _, z := range []int{2, 1} {
		c := viewNode("z" + string(rune('0'+z)))
		c.ZIndex = z
		root.AddChild(c)
	}
	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:z2", "draw:z1")
	g.structureDidChange = false

	root.SetSortChildren(true)
	if !g.StructureDidChange() {
		t.Fatal("SetSortChildren should mark the group holding the children")
	}
	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:z1", "draw:z2")

	g.structureDidChange = false
	root.SetSortChildren(true)
	if g.StructureDidChange() {
		t.Error("setting the same value should not mark the group")
	}
}

func TestBuildEffectBracket(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	m := viewNode("m")
	m.AddEffect(&testEffect{name: "mask"})
	m.AddChild(viewNode("x"))
	root.AddChild(m)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "push:mask", "draw:m", "draw:x", "pop:mask")
}

func TestBuildEffectsPopInReverse(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	n := viewNode("n")
	n.AddEffect(&testEffect{name: "e1"})
	n.AddEffect(&testEffect{name: "e2"})
	n.AddEffect(&testEffect{name: "e3"})
	root.AddChild(n)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(),
		"push:e1", "push:e2", "push:e3", "draw:n", "pop:e3", "pop:e2", "pop:e1")
}

func TestBuildEffectOnEmptySubtree(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	empty := NewContainer("empty")
	empty.AddEffect(&testEffect{name: "e"})
	root.AddChild(empty)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "push:e", "pop:e")
}

func TestBuildNestedEffects(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	outer := NewContainer("outer")
	outer.AddEffect(&testEffect{name: "o"})
	inner := viewNode("inner")
	inner.AddEffect(&testEffect{name: "i"})
	outer.AddChild(inner)
	outer.AddChild(viewNode("after"))
	root.AddChild(outer)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(),
		"push:o", "push:i", "draw:inner", "pop:i", "draw:after", "pop:o")
}

// --- Exclusion ---

func TestBuildExcludesIncludeInBuildFalse(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	hidden := viewNode("hidden")
	hidden.AddChild(viewNode("child"))
	hidden.SetIncludeInBuild(false)
	root.AddChild(hidden)
	root.AddChild(viewNode("shown"))

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:shown")
}

func TestBuildExcludesPartialVisibility(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()

	invisible := viewNode("invisible")
	invisible.SetVisible(false)
	invisible.AddChild(viewNode("under-invisible"))

	unrenderable := viewNode("unrenderable")
	unrenderable.SetRenderable(false)
	unrenderable.AddChild(viewNode("under-unrenderable"))

	root.AddChild(invisible)
	root.AddChild(unrenderable)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet())

	if invisible.VisibleRenderable() != renderableBit {
		t.Errorf("invisible flags = %02b, want %02b", invisible.VisibleRenderable(), renderableBit)
	}
	if unrenderable.VisibleRenderable() != visibleBit {
		t.Errorf("unrenderable flags = %02b, want %02b", unrenderable.VisibleRenderable(), visibleBit)
	}
}

func TestBuildExcludedEffectNodeEmitsNoBracket(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	n := viewNode("n")
	n.AddEffect(&testEffect{name: "e"})
	n.SetVisible(false)
	root.AddChild(n)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet())
}

// --- Idempotence ---

func TestBuildIdempotent(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	root.SortChildren = true
	a := viewNode("a")
	a.ZIndex = 2
	a.AddEffect(&testEffect{name: "e"})
	a.AddChild(viewNode("a1"))
	b := viewNode("b")
	b.ZIndex = 1
	root.AddChild(a)
	root.AddChild(b)
	nested := viewNode("nested")
	nested.EnableLayerGroup()
	root.AddChild(nested)

	BuildInstructions(g, p.RenderPipes)
	first := labels(g.InstructionSet())
	firstRenderables := len(g.InstructionSet().Renderables())

	BuildInstructions(g, p.RenderPipes)
	second := labels(g.InstructionSet())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("second build = %v, want %v", second, first)
	}
	if got := len(g.InstructionSet().Renderables()); got != firstRenderables {
		t.Errorf("renderables after rebuild = %d, want %d", got, firstRenderables)
	}
}

// --- Layer groups ---

func TestBuildLayerRootDelegatesOnce(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	layer := NewContainer("layer")
	layer.AddChild(viewNode("inside"))
	layer.EnableLayerGroup()
	root.AddChild(viewNode("before"))
	root.AddChild(layer)
	root.AddChild(viewNode("after"))

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:before", "layer:layer", "draw:after")

	BuildInstructions(layer.LayerGroup(), p.RenderPipes)
	assertLabels(t, layer.LayerGroup().InstructionSet(), "draw:inside")
}

func TestBuildLayerRootEffectsBracketDelegation(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	layer := viewNode("layer")
	layer.AddEffect(&testEffect{name: "e"})
	layer.EnableLayerGroup()
	root.AddChild(layer)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "push:e", "layer:layer", "pop:e")
}

func TestBuildProxyLeadsAndRootEffectsSkipped(t *testing.T) {
	p := newRecPipes(t)
	root := viewNode("root")
	root.AddEffect(&testEffect{name: "own"})
	g := root.EnableLayerGroup()
	root.AddChild(viewNode("child"))

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:proxy:root", "draw:child")
}

func TestBuildRootWithoutViewHasNoProxy(t *testing.T) {
	p := newRecPipes(t)
	_, g := newRoot()
	BuildInstructions(g, p.RenderPipes)
	if g.InstructionSet().Len() != 0 {
		t.Errorf("Len = %d, want 0", g.InstructionSet().Len())
	}
	if g.ProxyRenderable() != nil {
		t.Error("ProxyRenderable should be nil for a root without a view")
	}
}

func TestProxyRenderableCachedAndInvalidated(t *testing.T) {
	root := viewNode("root")
	root.SetPosition(50, 60)
	root.SetAlpha(0.5)
	g := root.EnableLayerGroup()

	p1 := g.ProxyRenderable()
	if p1 != g.ProxyRenderable() {
		t.Error("proxy should be cached between calls")
	}
	if p1.RelativeTransform() != identityTransform {
		t.Errorf("proxy transform = %v, want identity", p1.RelativeTransform())
	}
	if p1.RelativeAlpha() != 1 {
		t.Errorf("proxy alpha = %v, want 1", p1.RelativeAlpha())
	}

	g.structureDidChange = false
	root.SetView(testView{})
	p2 := g.ProxyRenderable()
	if p2 == p1 {
		t.Error("SetView should invalidate the proxy")
	}
	if !g.StructureDidChange() {
		t.Error("SetView on a layer root should mark its group changed")
	}
}

func TestProxyBlendModeIsRootResolved(t *testing.T) {
	p := newRecPipes(t)
	root := viewNode("root")
	root.SetBlendMode(BlendAdd)
	g := root.EnableLayerGroup()
	updateGroup(g, identityTransform, 1, BlendNormal, false)

	BuildInstructions(g, p.RenderPipes)
	if got := p.blend.modes["proxy:root"]; got != BlendAdd {
		t.Errorf("proxy blend = %v, want add", got)
	}
}

// --- Simple path ---

func TestIsSimpleDerived(t *testing.T) {
	n := NewContainer("n")
	if !n.IsSimple() {
		t.Error("new node should be simple")
	}
	e := &testEffect{name: "e"}
	n.AddEffect(e)
	if n.IsSimple() {
		t.Error("node with effects should not be simple")
	}
	n.RemoveEffect(e)
	if !n.IsSimple() {
		t.Error("node without effects should be simple again")
	}
	n.EnableLayerGroup()
	if n.IsSimple() {
		t.Error("layer root should not be simple")
	}
	n.DisableLayerGroup()
	if !n.IsSimple() {
		t.Error("node should be simple after DisableLayerGroup")
	}
}

func TestSimplePathLayerRootPanicsInDebug(t *testing.T) {
	SetDebugMode(true)
	defer SetDebugMode(false)

	p := newRecPipes(t)
	root, g := newRoot()
	layer := viewNode("layer")
	layer.EnableLayerGroup()
	layer.isSimple = true // out of sync on purpose
	root.AddChild(layer)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for a layer root on the simple path")
		}
	}()
	BuildInstructions(g, p.RenderPipes)
}

func TestSimplePathLayerRootDoesNotRecurse(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	layer := viewNode("layer")
	layer.AddChild(viewNode("inside"))
	layer.EnableLayerGroup()
	layer.isSimple = true
	root.AddChild(layer)

	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet(), "draw:layer")
}

func TestDidViewUpdateClearedByBuild(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	a := viewNode("a")
	root.AddChild(a)
	if !a.DidViewUpdate() {
		t.Fatal("SetView should set DidViewUpdate")
	}
	BuildInstructions(g, p.RenderPipes)
	if a.DidViewUpdate() {
		t.Error("build should clear DidViewUpdate")
	}
}

// --- Build pipes ---

func TestBuildStartEndOrder(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	root.AddChild(viewNode("a"))

	BuildInstructions(g, p.RenderPipes)
	want := []string{
		"batch.start", "blend.start", "colorMask.start",
		"batch.end", "blend.end", "colorMask.end",
	}
	if !reflect.DeepEqual(p.events, want) {
		t.Errorf("events = %v, want %v", p.events, want)
	}
}

func TestBuildResetsSet(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	a := viewNode("a")
	root.AddChild(a)
	BuildInstructions(g, p.RenderPipes)

	root.RemoveChild(a)
	BuildInstructions(g, p.RenderPipes)
	assertLabels(t, g.InstructionSet())
	if n := len(g.InstructionSet().Renderables()); n != 0 {
		t.Errorf("renderables = %d, want 0", n)
	}
}

// --- Missing pipes ---

type unknownView struct{}

func (unknownView) PipeKey() PipeKey { return "unknown" }

func TestBuildMissingRenderPipePanics(t *testing.T) {
	p := newRecPipes(t)
	root, g := newRoot()
	n := NewContainer("n")
	n.SetView(unknownView{})
	root.AddChild(n)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for missing render pipe")
		}
		if msg, _ := r.(string); !strings.HasPrefix(msg, "canopy: ") {
			t.Errorf("panic = %v, want canopy: prefix", r)
		}
	}()
	BuildInstructions(g, p.RenderPipes)
}

func TestValidateReportsMissingPipes(t *testing.T) {
	p := newRecPipes(t)
	root := NewContainer("root")
	n := NewContainer("n")
	n.SetView(unknownView{})
	root.AddChild(n)
	root.AddChild(viewNode("ok"))

	err := p.Validate(root)
	if !errors.Is(err, ErrNoRenderPipe) {
		t.Errorf("Validate = %v, want ErrNoRenderPipe", err)
	}

	if err := p.Validate(viewNode("fine")); err != nil {
		t.Errorf("Validate on a complete tree = %v, want nil", err)
	}
}
