package canopy

// BlendModeInstruction switches the blend mode used by following draws.
type BlendModeInstruction struct {
	Mode BlendMode
}

// PipeKey returns PipeBlendMode.
func (b *BlendModeInstruction) PipeKey() PipeKey { return PipeBlendMode }

// BlendModeStatePipe tracks the blend mode in effect while a set is built and
// emits a BlendModeInstruction only when it changes. Each set starts and ends
// in BlendNormal.
type BlendModeStatePipe struct {
	batch  BatchBreaker
	active BlendMode
}

// NewBlendModeStatePipe creates a blend pipe that breaks batch on changes.
func NewBlendModeStatePipe(batch BatchBreaker) *BlendModeStatePipe {
	return &BlendModeStatePipe{batch: batch}
}

// BuildStart resets the tracked mode to BlendNormal.
func (p *BlendModeStatePipe) BuildStart(set *InstructionSet) {
	p.active = BlendNormal
}

// BuildEnd restores BlendNormal so the set leaves no blend state behind.
func (p *BlendModeStatePipe) BuildEnd(set *InstructionSet) {
	p.switchTo(BlendNormal, set)
}

// SetBlendMode makes mode current for r.
func (p *BlendModeStatePipe) SetBlendMode(r Renderable, mode BlendMode, set *InstructionSet) {
	if mode == BlendInherit {
		mode = BlendNormal
	}
	p.switchTo(mode, set)
}

// Active returns the mode in effect at the end of the instructions built so far.
func (p *BlendModeStatePipe) Active() BlendMode {
	return p.active
}

func (p *BlendModeStatePipe) switchTo(mode BlendMode, set *InstructionSet) {
	if mode == p.active {
		return
	}
	p.batch.Break(set)
	set.Add(&BlendModeInstruction{Mode: mode})
	p.active = mode
}

// Execute sets the context's blend mode.
func (p *BlendModeStatePipe) Execute(inst Instruction, ctx *RenderContext) {
	ctx.blend = inst.(*BlendModeInstruction).Mode
}
