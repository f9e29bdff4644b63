package canopy

import "math"

// identityTransform is the identity affine matrix.
var identityTransform = [6]float64{1, 0, 0, 1, 0, 0}

// computeLocalTransform computes the local affine matrix from the node's
// transform properties. Returns [a, b, c, d, tx, ty].
//
// Composition order:
//
//	Translate(-PivotX, -PivotY) -> Scale -> Skew -> Rotate -> Translate(X, Y)
func computeLocalTransform(n *Node) [6]float64 {
	sx := n.ScaleX
	sy := n.ScaleY

	sin, cos := math.Sincos(n.Rotation)

	var tanSkewX, tanSkewY float64
	if n.SkewX != 0 {
		tanSkewX = math.Tan(n.SkewX)
	}
	if n.SkewY != 0 {
		tanSkewY = math.Tan(n.SkewY)
	}

	a := sx
	b := tanSkewY * sx
	c := tanSkewX * sy
	d := sy

	px := n.PivotX
	py := n.PivotY
	preTx := -px*sx - tanSkewX*py*sy
	preTy := -tanSkewY*px*sx - py*sy

	ra := cos*a - sin*b
	rb := sin*a + cos*b
	rc := cos*c - sin*d
	rd := sin*c + cos*d
	rtx := cos*preTx - sin*preTy
	rty := sin*preTx + cos*preTy

	return [6]float64{ra, rb, rc, rd, rtx + n.X, rty + n.Y}
}

// multiplyAffine multiplies two 2D affine matrices: result = parent * child.
//
//	Matrix layout: [a, b, c, d, tx, ty]
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
func multiplyAffine(p, c [6]float64) [6]float64 {
	return [6]float64{
		p[0]*c[0] + p[2]*c[1],
		p[1]*c[0] + p[3]*c[1],
		p[0]*c[2] + p[2]*c[3],
		p[1]*c[2] + p[3]*c[3],
		p[0]*c[4] + p[2]*c[5] + p[4],
		p[1]*c[4] + p[3]*c[5] + p[5],
	}
}

// invertAffine computes the inverse of a 2D affine matrix.
// Returns the identity matrix if the matrix is singular.
func invertAffine(m [6]float64) [6]float64 {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return identityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return [6]float64{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// transformPoint applies an affine matrix to a point.
func transformPoint(m [6]float64, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// resolveBlendMode returns n's own mode, or parent when n inherits.
func resolveBlendMode(n *Node, parent BlendMode) BlendMode {
	if n.BlendMode == BlendInherit {
		return parent
	}
	return n.BlendMode
}

// updateGroup refreshes g's world transform and the relative transforms,
// alphas and resolved blend modes of every node g owns, then recurses into
// nested groups. parentRecomputed forces recomputation even for clean nodes.
func updateGroup(g *LayerGroup, parentWorld [6]float64, parentAlpha float64, parentBlend BlendMode, parentRecomputed bool) {
	root := g.root
	recompute := root.transformDirty || parentRecomputed
	if recompute {
		g.worldTransform = multiplyAffine(parentWorld, computeLocalTransform(root))
		g.worldAlpha = parentAlpha * root.Alpha
		root.transformDirty = false
	}
	root.relativeTransform = identityTransform
	root.relativeAlpha = 1

	// The root's blend mode only shows up in its own set, through the proxy.
	if mode := resolveBlendMode(root, parentBlend); mode != root.layerBlendMode {
		root.layerBlendMode = mode
		g.structureDidChange = true
	}

	g.childGroups = g.childGroups[:0]
	for _, child := range root.children {
		updateNode(g, child, identityTransform, 1, root.layerBlendMode, recompute)
	}
}

// updateNode updates n, which belongs to g, relative to g's root.
func updateNode(g *LayerGroup, n *Node, parentRel [6]float64, parentAlpha float64, parentBlend BlendMode, parentRecomputed bool) {
	recompute := n.transformDirty || parentRecomputed
	var rel [6]float64
	var alpha float64
	if recompute {
		rel = multiplyAffine(parentRel, computeLocalTransform(n))
		alpha = parentAlpha * n.Alpha
	} else {
		rel = n.relativeTransform
		alpha = n.relativeAlpha
	}

	if mode := resolveBlendMode(n, parentBlend); mode != n.layerBlendMode {
		n.layerBlendMode = mode
		g.structureDidChange = true
	}

	// Effects of a layer root run in the parent set, so detached masks are
	// positioned relative to the root's place in g.
	for _, e := range n.effects {
		if m, ok := e.(*MaskEffect); ok && m.Mask != nil && m.Mask.Parent == nil {
			updateNode(g, m.Mask, rel, alpha, n.layerBlendMode, recompute)
		}
	}

	if n.layerGroup != nil {
		g.childGroups = append(g.childGroups, n.layerGroup)
		updateGroup(n.layerGroup, multiplyAffine(g.worldTransform, parentRel), g.worldAlpha*parentAlpha, parentBlend, recompute)
		return
	}

	if recompute {
		n.relativeTransform = rel
		n.relativeAlpha = alpha
		n.transformDirty = false
	}

	for _, child := range n.children {
		updateNode(g, child, n.relativeTransform, n.relativeAlpha, n.layerBlendMode, recompute)
	}
}

// WorldTransform returns the node's transform in world space as of the last
// update. For a layer root this is its group's world transform.
func (n *Node) WorldTransform() [6]float64 {
	if n.layerGroup != nil {
		return n.layerGroup.worldTransform
	}
	if g := n.parentLayerGroup(); g != nil {
		return multiplyAffine(g.worldTransform, n.relativeTransform)
	}
	return n.relativeTransform
}

// --- Transform property setters ---

// SetPosition sets the node's local X and Y and marks it dirty.
func (n *Node) SetPosition(x, y float64) {
	n.X = x
	n.Y = y
	n.transformDirty = true
}

// SetScale sets the node's ScaleX and ScaleY and marks it dirty.
func (n *Node) SetScale(sx, sy float64) {
	n.ScaleX = sx
	n.ScaleY = sy
	n.transformDirty = true
}

// SetRotation sets the node's rotation (in radians) and marks it dirty.
func (n *Node) SetRotation(r float64) {
	n.Rotation = r
	n.transformDirty = true
}

// SetSkew sets the node's SkewX and SkewY and marks it dirty.
func (n *Node) SetSkew(sx, sy float64) {
	n.SkewX = sx
	n.SkewY = sy
	n.transformDirty = true
}

// SetPivot sets the node's PivotX and PivotY and marks it dirty.
func (n *Node) SetPivot(px, py float64) {
	n.PivotX = px
	n.PivotY = py
	n.transformDirty = true
}

// SetAlpha sets the node's alpha and marks it dirty.
func (n *Node) SetAlpha(a float64) {
	n.Alpha = a
	n.transformDirty = true
}

// MarkDirty marks the node's transform as dirty, forcing recomputation
// on the next update. Useful after bulk-setting fields directly.
func (n *Node) MarkDirty() {
	n.transformDirty = true
}

// --- Coordinate conversion ---

// WorldToLocal converts a world-space point to this node's local coordinate space.
func (n *Node) WorldToLocal(wx, wy float64) (lx, ly float64) {
	inv := invertAffine(n.WorldTransform())
	return transformPoint(inv, wx, wy)
}

// LocalToWorld converts a local-space point to world-space.
func (n *Node) LocalToWorld(lx, ly float64) (wx, wy float64) {
	return transformPoint(n.WorldTransform(), lx, ly)
}
