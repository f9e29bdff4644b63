package canopy

import (
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// TweenGroup animates up to four float64 fields of a node at once. Create
// one with TweenPosition, TweenScale, TweenAlpha, TweenRotation or TweenTint
// and call Update(dt) each frame. There is no global animation manager.
//
// Transform tweens mark the node dirty for the update pass. Tints are read
// when batches execute, so tint tweens need no rebuild.
type TweenGroup struct {
	tweens [4]*gween.Tween
	fields [4]*float64
	count  int
	target *Node
	view   bool // fields belong to the target's view
	Done   bool
}

// Update advances the tweens by dt seconds and writes the values. If the
// target was disposed the group finishes without writing.
func (g *TweenGroup) Update(dt float32) {
	if g.Done {
		return
	}
	if g.target != nil && g.target.IsDisposed() {
		g.Done = true
		return
	}

	done := true
	for i := range g.count {
		v, finished := g.tweens[i].Update(dt)
		*g.fields[i] = float64(v)
		done = done && finished
	}
	g.Done = done

	if !g.view {
		g.target.MarkDirty()
	}
}

func newTweenGroup(node *Node, duration float32, fn ease.TweenFunc, fields []*float64, to []float64) *TweenGroup {
	g := &TweenGroup{count: len(fields), target: node}
	for i, f := range fields {
		g.tweens[i] = gween.New(float32(*f), float32(to[i]), duration, fn)
		g.fields[i] = f
	}
	return g
}

// TweenPosition animates X and Y.
func TweenPosition(node *Node, toX, toY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn, []*float64{&node.X, &node.Y}, []float64{toX, toY})
}

// TweenScale animates ScaleX and ScaleY.
func TweenScale(node *Node, toSX, toSY float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn, []*float64{&node.ScaleX, &node.ScaleY}, []float64{toSX, toSY})
}

// TweenAlpha animates Alpha.
func TweenAlpha(node *Node, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn, []*float64{&node.Alpha}, []float64{to})
}

// TweenRotation animates Rotation.
func TweenRotation(node *Node, to float64, duration float32, fn ease.TweenFunc) *TweenGroup {
	return newTweenGroup(node, duration, fn, []*float64{&node.Rotation}, []float64{to})
}

// TweenTint animates the tint of a sprite or mesh view. Panics if the node
// has neither.
func TweenTint(node *Node, to Color, duration float32, fn ease.TweenFunc) *TweenGroup {
	var tint *Color
	switch v := node.view.(type) {
	case *SpriteView:
		tint = &v.Tint
	case *MeshView:
		tint = &v.Tint
	default:
		panic("canopy: TweenTint needs a sprite or mesh view")
	}
	g := newTweenGroup(node, duration, fn,
		[]*float64{&tint.R, &tint.G, &tint.B, &tint.A},
		[]float64{to.R, to.G, to.B, to.A})
	g.view = true
	return g
}
