package canopy

// LayerGroupInstruction draws a nested layer group's own instruction set in
// place.
type LayerGroupInstruction struct {
	Group *LayerGroup
}

// PipeKey returns PipeLayer.
func (l *LayerGroupInstruction) PipeKey() PipeKey { return PipeLayer }

// LayerGroupPipe emits and executes the delegation instruction for nested
// layer groups.
type LayerGroupPipe struct {
	batch BatchBreaker
}

// NewLayerGroupPipe creates a layer pipe that breaks batch before each group.
func NewLayerGroupPipe(batch BatchBreaker) *LayerGroupPipe {
	return &LayerGroupPipe{batch: batch}
}

// AddLayerGroup emits one LayerGroupInstruction for g.
func (p *LayerGroupPipe) AddLayerGroup(g *LayerGroup, set *InstructionSet) {
	p.batch.Break(set)
	set.Add(&LayerGroupInstruction{Group: g})
}

// Execute runs the nested group's set under the group's world transform.
func (p *LayerGroupPipe) Execute(inst Instruction, ctx *RenderContext) {
	ctx.renderer.executeGroup(inst.(*LayerGroupInstruction).Group, ctx)
}
