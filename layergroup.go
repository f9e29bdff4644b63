package canopy

// LayerGroup is a partition of the scene graph rooted at a layer-root node.
// It owns one instruction set that is rebuilt in isolation from sibling and
// parent groups; the parent group references it through a single
// LayerGroupInstruction.
type LayerGroup struct {
	root           *Node // back-reference; the root node owns the group
	instructionSet *InstructionSet
	proxy          *LayerRenderable

	structureDidChange bool

	// Set by the update pass.
	worldTransform [6]float64
	worldAlpha     float64
	childGroups    []*LayerGroup
}

func newLayerGroup(root *Node) *LayerGroup {
	return &LayerGroup{
		root:               root,
		structureDidChange: true,
		worldTransform:     identityTransform,
		worldAlpha:         1,
	}
}

// EnableLayerGroup makes the node a layer root that owns its own group.
// No-op if it already is one.
func (n *Node) EnableLayerGroup() *LayerGroup {
	if n.layerGroup != nil {
		return n.layerGroup
	}
	n.layerGroup = newLayerGroup(n)
	n.updateIsSimple()
	n.markParentStructureChanged()
	// Relative transforms below n now measure from n instead of the old root.
	markSubtreeDirty(n)
	return n.layerGroup
}

// DisableLayerGroup folds the node's subtree back into the parent group.
func (n *Node) DisableLayerGroup() {
	if n.layerGroup == nil {
		return
	}
	n.layerGroup.dispose()
	n.layerGroup = nil
	n.updateIsSimple()
	n.markParentStructureChanged()
	markSubtreeDirty(n)
}

// IsLayerRoot reports whether the node owns a LayerGroup.
func (n *Node) IsLayerRoot() bool {
	return n.layerGroup != nil
}

// LayerGroup returns the group owned by this node, or nil.
func (n *Node) LayerGroup() *LayerGroup {
	return n.layerGroup
}

// Root returns the group's root node.
func (g *LayerGroup) Root() *Node {
	return g.root
}

// InstructionSet returns the group's instruction set, creating it on first use.
func (g *LayerGroup) InstructionSet() *InstructionSet {
	if g.instructionSet == nil {
		g.instructionSet = NewInstructionSet(defaultInstructionCap)
	}
	return g.instructionSet
}

// ensureInstructionSet creates the set with the given capacity if it does
// not exist yet.
func (g *LayerGroup) ensureInstructionSet(capacity int) *InstructionSet {
	if g.instructionSet == nil {
		g.instructionSet = NewInstructionSet(capacity)
	}
	return g.instructionSet
}

// ProxyRenderable returns the cached proxy for the root's view, creating it
// if needed. Returns nil when the root has no view.
func (g *LayerGroup) ProxyRenderable() *LayerRenderable {
	if g.proxy == nil && g.root.view != nil {
		g.proxy = &LayerRenderable{original: g.root, view: g.root.view}
	}
	return g.proxy
}

// InvalidateProxy drops the cached proxy so the next build wraps the root's
// current view. Node.SetView calls this for layer roots.
func (g *LayerGroup) InvalidateProxy() {
	g.proxy = nil
	g.structureDidChange = true
}

// StructureDidChange reports whether the group must be rebuilt.
func (g *LayerGroup) StructureDidChange() bool {
	return g.structureDidChange
}

// MarkStructureChanged forces a rebuild on the next render.
func (g *LayerGroup) MarkStructureChanged() {
	g.structureDidChange = true
}

// WorldTransform returns the group's world transform from the last update.
// It already contains the root's own local transform.
func (g *LayerGroup) WorldTransform() [6]float64 {
	return g.worldTransform
}

// WorldAlpha returns the group's world alpha from the last update.
func (g *LayerGroup) WorldAlpha() float64 {
	return g.worldAlpha
}

// ChildGroups returns the groups nested directly below this one, as found by
// the last update pass.
func (g *LayerGroup) ChildGroups() []*LayerGroup {
	return g.childGroups
}

func (g *LayerGroup) dispose() {
	if g.instructionSet != nil {
		g.instructionSet.Reset()
	}
	g.proxy = nil
	g.childGroups = nil
	g.root = nil
}

// LayerRenderable stands in for a layer group's root when the root's own
// view is drawn. The group's world transform already contains the root's
// transform and alpha, so the proxy carries identity instead of the root's.
type LayerRenderable struct {
	original *Node
	view     View
}

// Original returns the root node the proxy stands in for.
func (p *LayerRenderable) Original() *Node { return p.original }

// View returns the wrapped view.
func (p *LayerRenderable) View() View { return p.view }

// LayerBlendMode returns the root's resolved blend mode.
func (p *LayerRenderable) LayerBlendMode() BlendMode { return p.original.layerBlendMode }

// RelativeTransform returns the identity transform.
func (p *LayerRenderable) RelativeTransform() [6]float64 { return identityTransform }

// RelativeAlpha returns 1.
func (p *LayerRenderable) RelativeAlpha() float64 { return 1 }
