package canopy

// ColorMask selects the color channels a subtree may write.
type ColorMask uint8

const (
	ColorMaskRed ColorMask = 1 << iota
	ColorMaskGreen
	ColorMaskBlue
	ColorMaskAlpha

	ColorMaskAll = ColorMaskRed | ColorMaskGreen | ColorMaskBlue | ColorMaskAlpha
)

// ColorMaskEffect restricts the channels written by the node's subtree.
type ColorMaskEffect struct {
	Mask ColorMask
}

// PipeKey returns PipeColorMask.
func (e *ColorMaskEffect) PipeKey() PipeKey { return PipeColorMask }

// ColorMaskInstruction switches the active channel mask.
type ColorMaskInstruction struct {
	Mask ColorMask
}

// PipeKey returns PipeColorMask.
func (c *ColorMaskInstruction) PipeKey() PipeKey { return PipeColorMask }

// ColorMaskPipe keeps a stack of channel masks while a set is built. It emits
// a ColorMaskInstruction only when the effective mask changes.
//
// Masked channels are zeroed in vertex colors at execution time. With
// source-over blending a masked channel therefore still darkens by the
// source alpha; it is not a hardware write mask.
type ColorMaskPipe struct {
	batch  BatchBreaker
	stack  []ColorMask
	active ColorMask
}

// NewColorMaskPipe creates a color mask pipe that breaks batch on changes.
func NewColorMaskPipe(batch BatchBreaker) *ColorMaskPipe {
	return &ColorMaskPipe{batch: batch, active: ColorMaskAll}
}

// BuildStart resets the stack. Every set starts with all channels enabled.
func (p *ColorMaskPipe) BuildStart(set *InstructionSet) {
	p.stack = p.stack[:0]
	p.active = ColorMaskAll
}

// BuildEnd restores all channels if the set left a mask active.
func (p *ColorMaskPipe) BuildEnd(set *InstructionSet) {
	p.stack = p.stack[:0]
	p.switchTo(ColorMaskAll, set)
}

// Push makes the effect's mask current for n's subtree.
func (p *ColorMaskPipe) Push(e Effect, n *Node, set *InstructionSet) {
	p.stack = append(p.stack, p.active)
	p.switchTo(e.(*ColorMaskEffect).Mask, set)
}

// Pop restores the mask that was current before the matching Push.
func (p *ColorMaskPipe) Pop(e Effect, n *Node, set *InstructionSet) {
	if len(p.stack) == 0 {
		panic("canopy: color mask pop without push")
	}
	prev := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.switchTo(prev, set)
}

func (p *ColorMaskPipe) switchTo(m ColorMask, set *InstructionSet) {
	if m == p.active {
		return
	}
	p.batch.Break(set)
	set.Add(&ColorMaskInstruction{Mask: m})
	p.active = m
}

// Execute applies the mask, limited by the mask in effect when the current
// group was entered.
func (p *ColorMaskPipe) Execute(inst Instruction, ctx *RenderContext) {
	ctx.colorMask = ctx.baseColorMask & inst.(*ColorMaskInstruction).Mask
}
