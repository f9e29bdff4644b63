package canopy

import "github.com/hajimehoshi/ebiten/v2"

// View is the renderable payload attached to a node. PipeKey selects the
// render pipe that turns it into instructions.
type View interface {
	PipeKey() PipeKey
}

// Renderable is what render pipes receive: a node with a view, or a
// LayerRenderable standing in for a layer group's root.
type Renderable interface {
	View() View
	LayerBlendMode() BlendMode
	RelativeTransform() [6]float64
	RelativeAlpha() float64
}

// SpriteView draws an image as a single quad. Sprites sharing an image are
// batched together.
type SpriteView struct {
	// Image is drawn in full; pass a SubImage to draw an atlas region.
	// Nil draws WhitePixel.
	Image *ebiten.Image
	Tint  Color
}

// PipeKey returns PipeSprite.
func (v *SpriteView) PipeKey() PipeKey { return PipeSprite }

func (v *SpriteView) image() *ebiten.Image {
	if v.Image == nil {
		return WhitePixel
	}
	return v.Image
}

// MeshView draws arbitrary triangles. Vertex positions are local to the
// node; colors are multiplied by Tint and the node's alpha.
type MeshView struct {
	Image    *ebiten.Image
	Vertices []ebiten.Vertex
	Indices  []uint16
	Tint     Color

	transformed []ebiten.Vertex // preallocated transform buffer
}

// PipeKey returns PipeMesh.
func (v *MeshView) PipeKey() PipeKey { return PipeMesh }

// Bounds returns the local-space AABB of the vertices.
func (v *MeshView) Bounds() Rect {
	return computeMeshAABB(v.Vertices)
}

// Effect is a stackable modifier bracketing a node's subtree. PipeKey
// selects the instruction pipe that pushes and pops it.
type Effect interface {
	PipeKey() PipeKey
}

// AddEffect appends e to the node's effect stack. Effects are pushed in
// list order and popped in reverse.
func (n *Node) AddEffect(e Effect) {
	if e == nil {
		panic("canopy: cannot add nil effect")
	}
	n.effects = append(n.effects, e)
	n.updateIsSimple()
	n.markParentStructureChanged()
}

// RemoveEffect removes e from the node's effect stack and reports whether
// it was present.
func (n *Node) RemoveEffect(e Effect) bool {
	for i, cur := range n.effects {
		if cur == e {
			copy(n.effects[i:], n.effects[i+1:])
			n.effects[len(n.effects)-1] = nil
			n.effects = n.effects[:len(n.effects)-1]
			n.updateIsSimple()
			n.markParentStructureChanged()
			return true
		}
	}
	return false
}

// Effects returns the effect stack. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Effects() []Effect {
	return n.effects
}
