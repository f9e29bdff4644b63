package canopy

import "github.com/hajimehoshi/ebiten/v2"

// Packed visibility bits. A node is built only when both are set.
const (
	renderableBit     uint8 = 0b01 // the node itself may draw
	visibleBit        uint8 = 0b10 // the node and its subtree may draw
	visibleRenderable uint8 = visibleBit | renderableBit
)

// nodeIDCounter is a plain counter. Scene mutation is single-threaded.
var nodeIDCounter uint32

func nextNodeID() uint32 {
	nodeIDCounter++
	return nodeIDCounter
}

// Node is the scene graph element. It may carry a view, an ordered effect
// stack and children, and it may own a LayerGroup when it is a layer root.
type Node struct {
	// Identity
	ID   uint32
	Name string

	// Hierarchy. Parent is a back-reference; children own their subtrees.
	Parent   *Node
	children []*Node

	// Transform (local)
	X, Y         float64
	ScaleX       float64
	ScaleY       float64
	Rotation     float64
	SkewX, SkewY float64
	PivotX       float64
	PivotY       float64
	Alpha        float64

	// ZIndex is the depth key used by SortChildrenDepth.
	ZIndex int

	// SortChildren requests a stable depth sort of the children before they
	// are traversed. Set it with SetSortChildren; a direct write takes effect
	// on the next build of the owning group, whenever that happens.
	SortChildren bool

	// BlendMode is the node's own blend mode. BlendInherit takes the
	// parent's resolved mode.
	BlendMode BlendMode

	// Metadata
	UserData any

	// Computed by the update pass, relative to the owning layer group root.
	relativeTransform [6]float64
	relativeAlpha     float64
	transformDirty    bool
	layerBlendMode    BlendMode

	// Build state
	visibleRenderable uint8
	includeInBuild    bool
	isSimple          bool
	didViewUpdate     bool
	sortDirty         bool
	view              View
	effects           []Effect
	layerGroup        *LayerGroup
	maskedBy          *Node // non-owning; the node whose MaskEffect draws n

	disposed bool
}

// nodeDefaults sets the common default field values shared by all constructors.
func nodeDefaults(n *Node) {
	n.ID = nextNodeID()
	n.ScaleX = 1
	n.ScaleY = 1
	n.Alpha = 1
	n.BlendMode = BlendInherit
	n.layerBlendMode = BlendNormal
	n.relativeTransform = identityTransform
	n.relativeAlpha = 1
	n.transformDirty = true
	n.visibleRenderable = visibleRenderable
	n.includeInBuild = true
	n.isSimple = true
}

// NewContainer creates a node with no view.
func NewContainer(name string) *Node {
	n := &Node{Name: name}
	nodeDefaults(n)
	return n
}

// NewSprite creates a node that draws img as a quad. A nil img draws
// WhitePixel, which is useful for solid rectangles scaled by ScaleX/ScaleY.
func NewSprite(name string, img *ebiten.Image) *Node {
	n := NewContainer(name)
	n.view = &SpriteView{Image: img, Tint: ColorWhite}
	n.didViewUpdate = true
	return n
}

// NewMesh creates a node that draws arbitrary triangles.
func NewMesh(name string, img *ebiten.Image, vertices []ebiten.Vertex, indices []uint16) *Node {
	n := NewContainer(name)
	n.view = &MeshView{Image: img, Vertices: vertices, Indices: indices, Tint: ColorWhite}
	n.didViewUpdate = true
	return n
}

// --- View ---

// View returns the node's view, or nil if it has none.
func (n *Node) View() View {
	return n.view
}

// SetView replaces the node's view. On a layer root the cached proxy
// renderable is invalidated so the next build wraps the new view.
func (n *Node) SetView(v View) {
	n.view = v
	n.didViewUpdate = true
	if n.layerGroup != nil {
		n.layerGroup.InvalidateProxy()
	}
	n.markViewChanged()
}

// MarkViewUpdated flags that the view's cached geometry or state was
// refreshed. The owning group is rebuilt on the next render.
func (n *Node) MarkViewUpdated() {
	if n.view == nil {
		return
	}
	n.didViewUpdate = true
	n.markViewChanged()
}

// DidViewUpdate reports whether the view changed since it was last handed
// to its pipe.
func (n *Node) DidViewUpdate() bool {
	return n.didViewUpdate
}

// --- Build flags ---

// SetVisible sets whether the node and its subtree are drawn.
func (n *Node) SetVisible(v bool) {
	n.setVisibilityBit(visibleBit, v)
}

// Visible reports whether the subtree-visible bit is set.
func (n *Node) Visible() bool {
	return n.visibleRenderable&visibleBit != 0
}

// SetRenderable sets whether the node itself is drawn. Both bits must be
// set for the node to take part in a build.
func (n *Node) SetRenderable(r bool) {
	n.setVisibilityBit(renderableBit, r)
}

// Renderable reports whether the self-renderable bit is set.
func (n *Node) Renderable() bool {
	return n.visibleRenderable&renderableBit != 0
}

// VisibleRenderable returns the packed visibility flags:
// bit 0 renderable, bit 1 visible.
func (n *Node) VisibleRenderable() uint8 {
	return n.visibleRenderable
}

func (n *Node) setVisibilityBit(bit uint8, on bool) {
	old := n.visibleRenderable
	if on {
		n.visibleRenderable |= bit
	} else {
		n.visibleRenderable &^= bit
	}
	if n.visibleRenderable != old {
		n.markParentStructureChanged()
	}
}

// SetIncludeInBuild sets whether the node and its subtree are compiled into
// instructions at all.
func (n *Node) SetIncludeInBuild(include bool) {
	if n.includeInBuild == include {
		return
	}
	n.includeInBuild = include
	n.markParentStructureChanged()
}

// IncludeInBuild reports whether the node takes part in builds.
func (n *Node) IncludeInBuild() bool {
	return n.includeInBuild
}

// IsSimple reports whether the node takes the fast traversal path: no
// effects and not a layer root.
func (n *Node) IsSimple() bool {
	return n.isSimple
}

func (n *Node) updateIsSimple() {
	n.isSimple = len(n.effects) == 0 && n.layerGroup == nil
}

// SetBlendMode sets the node's own blend mode.
func (n *Node) SetBlendMode(b BlendMode) {
	if n.BlendMode == b {
		return
	}
	n.BlendMode = b
	n.markParentStructureChanged()
}

// LayerBlendMode returns the blend mode resolved by the last update pass.
func (n *Node) LayerBlendMode() BlendMode {
	return n.layerBlendMode
}

// RelativeTransform returns the node's transform relative to the root of
// the layer group that owns it.
func (n *Node) RelativeTransform() [6]float64 {
	return n.relativeTransform
}

// RelativeAlpha returns the node's alpha relative to its group root.
func (n *Node) RelativeAlpha() float64 {
	return n.relativeAlpha
}

// --- Tree manipulation ---

// AddChild appends child to this node's children.
// If child already has a parent, it is removed from that parent first.
// Panics if child is nil or child is an ancestor of this node (cycle).
func (n *Node) AddChild(child *Node) {
	n.checkChild(child, "AddChild")
	if child.Parent != nil {
		child.Parent.detach(child)
	}
	child.Parent = n
	n.children = append(n.children, child)
	n.childrenChanged()
	markSubtreeDirty(child)
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(n)
	}
}

// AddChildAt inserts child at the given index.
// Same reparenting and cycle-check behavior as AddChild.
func (n *Node) AddChildAt(child *Node, index int) {
	n.checkChild(child, "AddChildAt")
	if child.Parent != nil {
		child.Parent.detach(child)
	}
	if index < 0 || index > len(n.children) {
		panic("canopy: child index out of range")
	}
	child.Parent = n
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
	n.childrenChanged()
	markSubtreeDirty(child)
	if globalDebug {
		debugCheckTreeDepth(child)
		debugCheckChildCount(n)
	}
}

func (n *Node) checkChild(child *Node, op string) {
	if child == nil {
		panic("canopy: cannot add nil child")
	}
	if globalDebug {
		debugCheckDisposed(n, op+" (parent)")
		debugCheckDisposed(child, op+" (child)")
	}
	if isAncestor(child, n) {
		panic("canopy: adding child would create a cycle")
	}
}

// RemoveChild detaches child from this node.
// Panics if child.Parent != n.
func (n *Node) RemoveChild(child *Node) {
	if globalDebug {
		debugCheckDisposed(n, "RemoveChild (parent)")
		debugCheckDisposed(child, "RemoveChild (child)")
	}
	if child.Parent != n {
		panic("canopy: child's parent is not this node")
	}
	n.detach(child)
}

// RemoveChildAt removes and returns the child at the given index.
func (n *Node) RemoveChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		panic("canopy: child index out of range")
	}
	child := n.children[index]
	n.detach(child)
	return child
}

// RemoveFromParent detaches this node from its parent.
// No-op if this node has no parent.
func (n *Node) RemoveFromParent() {
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// RemoveChildren detaches all children from this node.
// Children are NOT disposed.
func (n *Node) RemoveChildren() {
	for i, child := range n.children {
		child.Parent = nil
		markSubtreeDirty(child)
		n.children[i] = nil
	}
	n.children = n.children[:0]
	n.childrenChanged()
}

// Children returns the child list. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// ChildAt returns the child at the given index.
func (n *Node) ChildAt(index int) *Node {
	return n.children[index]
}

// SetChildIndex moves child to a new index among its siblings.
func (n *Node) SetChildIndex(child *Node, index int) {
	if child.Parent != n {
		panic("canopy: child's parent is not this node")
	}
	if index < 0 || index >= len(n.children) {
		panic("canopy: child index out of range")
	}
	oldIndex := n.indexOf(child)
	if oldIndex == index {
		return
	}
	if oldIndex < index {
		copy(n.children[oldIndex:], n.children[oldIndex+1:index+1])
	} else {
		copy(n.children[index+1:], n.children[index:oldIndex])
	}
	n.children[index] = child
	n.childrenChanged()
}

// SetZIndex sets the node's depth and marks the parent's children as unsorted.
func (n *Node) SetZIndex(z int) {
	if n.ZIndex == z {
		return
	}
	n.ZIndex = z
	if n.Parent != nil {
		n.Parent.childrenChanged()
	}
}

// SetSortChildren turns the depth sort of n's children on or off and flags
// the group that holds them.
func (n *Node) SetSortChildren(on bool) {
	if n.SortChildren == on {
		return
	}
	n.SortChildren = on
	n.childrenChanged()
}

// SortChildrenDepth stably sorts the children by ZIndex. Equal depths keep
// their insertion order. No-op when nothing changed since the last sort.
func (n *Node) SortChildrenDepth() {
	if !n.sortDirty {
		return
	}
	n.sortDirty = false
	// Insertion sort: stable, allocation-free, linear on sorted input.
	c := n.children
	for i := 1; i < len(c); i++ {
		key := c[i]
		j := i - 1
		for j >= 0 && c[j].ZIndex > key.ZIndex {
			c[j+1] = c[j]
			j--
		}
		c[j+1] = key
	}
}

// --- Disposal ---

// Dispose removes this node from its parent, marks it as disposed,
// and recursively disposes all descendants and any owned layer group.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.RemoveFromParent()
	n.dispose()
}

func (n *Node) dispose() {
	n.disposed = true
	n.ID = 0
	for _, child := range n.children {
		child.Parent = nil
		child.dispose()
	}
	for _, e := range n.effects {
		if m, ok := e.(*MaskEffect); ok && m.Mask != nil {
			if m.Mask.maskedBy == n {
				m.Mask.maskedBy = nil
			}
			if m.Mask.Parent == nil {
				m.Mask.dispose()
			}
		}
	}
	if n.layerGroup != nil {
		n.layerGroup.dispose()
		n.layerGroup = nil
	}
	n.children = nil
	n.effects = nil
	n.view = nil
	n.Parent = nil
	n.maskedBy = nil
	n.UserData = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Helpers ---

// isAncestor reports whether candidate is an ancestor of node.
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

func (n *Node) indexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// detach removes child from n.children and clears its parent.
// Uses copy+nil to avoid retaining a dangling pointer in the backing array.
func (n *Node) detach(child *Node) {
	i := n.indexOf(child)
	if i < 0 {
		return
	}
	copy(n.children[i:], n.children[i+1:])
	n.children[len(n.children)-1] = nil
	n.children = n.children[:len(n.children)-1]
	child.Parent = nil
	n.childrenChanged()
	markSubtreeDirty(child)
}

func (n *Node) childrenChanged() {
	n.sortDirty = true
	if g := n.renderGroup(); g != nil {
		g.structureDidChange = true
	}
	n.markMaskHosts()
}

// renderGroup returns the group whose instruction set holds n's children:
// n's own group when it is a layer root, otherwise the nearest ancestor's.
// A detached mask subtree belongs to the set its masked node's effects run in.
func (n *Node) renderGroup() *LayerGroup {
	for p := n; p != nil; p = p.Parent {
		if p.layerGroup != nil {
			return p.layerGroup
		}
		if p.Parent == nil && p.maskedBy != nil {
			return p.maskedBy.parentLayerGroup()
		}
	}
	return nil
}

// parentLayerGroup returns the group whose instruction set holds n itself.
func (n *Node) parentLayerGroup() *LayerGroup {
	if n.Parent == nil {
		if n.maskedBy != nil {
			return n.maskedBy.parentLayerGroup()
		}
		return nil
	}
	return n.Parent.renderGroup()
}

func (n *Node) markParentStructureChanged() {
	if g := n.parentLayerGroup(); g != nil {
		g.structureDidChange = true
	}
	n.markMaskHosts()
}

// markViewChanged flags the group that dispatches n's view: the proxy lives
// in n's own group when n is a layer root.
func (n *Node) markViewChanged() {
	if g := n.renderGroup(); g != nil {
		g.structureDidChange = true
	}
	n.markMaskHosts()
}

// markMaskHosts flags the sets that compile n through a mask effect, when n
// sits inside a mask node that is part of the tree.
func (n *Node) markMaskHosts() {
	for p := n; p != nil; p = p.Parent {
		if p.maskedBy == nil || p.Parent == nil {
			continue
		}
		if g := p.maskedBy.parentLayerGroup(); g != nil {
			g.structureDidChange = true
		}
	}
}

// markSubtreeDirty sets transformDirty on node and all its descendants.
func markSubtreeDirty(node *Node) {
	node.transformDirty = true
	for _, child := range node.children {
		markSubtreeDirty(child)
	}
}
