package canopy

import "github.com/hajimehoshi/ebiten/v2"

// MaskEffect clips the node's subtree to the alpha of Mask's content.
//
// A mask node that has no parent is positioned relative to the masked node
// and is updated and disposed with it. A mask node that is part of the tree
// keeps its own place, even when it lives in another layer group than the
// masked node. Either way it is excluded from normal builds and only drawn
// through the effect. A mask node masks one node at a time.
type MaskEffect struct {
	Mask *Node
}

// PipeKey returns PipeMask.
func (e *MaskEffect) PipeKey() PipeKey { return PipeMask }

// SetMask masks this node with maskNode, replacing any existing mask. A nil
// maskNode clears the mask. Panics if maskNode is n or one of its ancestors.
func (n *Node) SetMask(maskNode *Node) {
	n.ClearMask()
	if maskNode == nil {
		return
	}
	if isAncestor(maskNode, n) {
		panic("canopy: mask node cannot be the masked node or its ancestor")
	}
	maskNode.maskedBy = n
	maskNode.SetIncludeInBuild(false)
	markSubtreeDirty(maskNode)
	n.AddEffect(&MaskEffect{Mask: maskNode})
}

// ClearMask removes the mask from this node. The mask node is included in
// builds again but not disposed.
func (n *Node) ClearMask() {
	for _, e := range n.effects {
		if m, ok := e.(*MaskEffect); ok {
			n.RemoveEffect(m)
			if m.Mask != nil {
				m.Mask.SetIncludeInBuild(true)
				if m.Mask.maskedBy == n {
					m.Mask.maskedBy = nil
				}
			}
			return
		}
	}
}

// GetMask returns the current mask node, or nil if no mask is set.
func (n *Node) GetMask() *Node {
	for _, e := range n.effects {
		if m, ok := e.(*MaskEffect); ok {
			return m.Mask
		}
	}
	return nil
}

// MaskAction identifies the stage of a mask bracket.
type MaskAction uint8

const (
	// MaskPushBegin starts collecting the mask's own content.
	MaskPushBegin MaskAction = iota
	// MaskPushEnd ends the mask content and starts the masked content.
	MaskPushEnd
	// MaskPop composites the masked content through the mask.
	MaskPop
)

// String returns the action's name.
func (a MaskAction) String() string {
	switch a {
	case MaskPushBegin:
		return "pushMaskBegin"
	case MaskPushEnd:
		return "pushMaskEnd"
	case MaskPop:
		return "popMask"
	default:
		return "unknown"
	}
}

// MaskInstruction is one stage of a mask bracket.
type MaskInstruction struct {
	Action MaskAction
	Mask   *Node
}

// PipeKey returns PipeMask.
func (m *MaskInstruction) PipeKey() PipeKey { return PipeMask }

// MaskPipe builds and executes MaskEffect brackets. The mask node's content
// is compiled inline between MaskPushBegin and MaskPushEnd.
type MaskPipe struct {
	batch BatchBreaker
	pipes *RenderPipes
}

// NewMaskPipe creates a mask pipe that compiles mask content through pipes.
func NewMaskPipe(batch BatchBreaker, pipes *RenderPipes) *MaskPipe {
	return &MaskPipe{batch: batch, pipes: pipes}
}

// Push emits the mask's content bracketed by begin and end instructions.
func (p *MaskPipe) Push(e Effect, n *Node, set *InstructionSet) {
	m := e.(*MaskEffect)
	p.batch.Break(set)
	set.Add(&MaskInstruction{Action: MaskPushBegin, Mask: m.Mask})

	if m.Mask != nil {
		was := m.Mask.includeInBuild
		m.Mask.includeInBuild = true
		collectRenderables(m.Mask, set, p.pipes)
		m.Mask.includeInBuild = was
	}

	p.batch.Break(set)
	set.Add(&MaskInstruction{Action: MaskPushEnd, Mask: m.Mask})
}

// Pop emits the composite instruction.
func (p *MaskPipe) Pop(e Effect, n *Node, set *InstructionSet) {
	p.batch.Break(set)
	set.Add(&MaskInstruction{Action: MaskPop, Mask: e.(*MaskEffect).Mask})
}

// Execute runs one stage of a mask bracket. The mask content and the masked
// content each go to their own offscreen; the pop keeps the content only
// where the mask has alpha and draws the result into the outer target.
func (p *MaskPipe) Execute(inst Instruction, ctx *RenderContext) {
	mi := inst.(*MaskInstruction)
	switch mi.Action {
	case MaskPushBegin:
		m := mi.Mask
		maskImg := ctx.acquireOffscreen()
		ctx.masks = append(ctx.masks, maskFrame{mask: maskImg, transform: ctx.transform, alpha: ctx.alpha})
		ctx.pushTarget(maskImg)
		// A mask node in the tree is positioned relative to its own group.
		if m != nil && m.Parent != nil {
			if g := m.parentLayerGroup(); g != nil {
				ctx.transform = multiplyAffine(ctx.view, g.worldTransform)
				ctx.alpha = g.worldAlpha
			}
		}

	case MaskPushEnd:
		f := &ctx.masks[len(ctx.masks)-1]
		ctx.transform, ctx.alpha = f.transform, f.alpha
		ctx.popTarget()
		f.content = ctx.acquireOffscreen()
		ctx.pushTarget(f.content)

	case MaskPop:
		ctx.popTarget()
		f := ctx.masks[len(ctx.masks)-1]
		ctx.masks[len(ctx.masks)-1] = maskFrame{}
		ctx.masks = ctx.masks[:len(ctx.masks)-1]

		var op ebiten.DrawImageOptions
		op.Blend = BlendMask.EbitenBlend()
		f.content.DrawImage(f.mask, &op)

		op = ebiten.DrawImageOptions{}
		op.Blend = ebiten.BlendSourceOver
		ctx.Target().DrawImage(f.content, &op)

		ctx.releaseOffscreen(f.mask)
		ctx.releaseOffscreen(f.content)
		ctx.renderer.stats.DrawCalls += 2
	}
}
