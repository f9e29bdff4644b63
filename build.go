package canopy

// BuildInstructions recompiles g's instruction set from its subtree. Content
// owned by nested layer groups is not visited; each nested group gets a
// single delegation instruction and is built separately.
func BuildInstructions(g *LayerGroup, pipes *RenderPipes) {
	root := g.root
	set := g.InstructionSet()

	set.Reset()

	pipes.buildStart(set)

	// The proxy stands in for the root so its view is drawn without applying
	// the root's transform a second time.
	if root.view != nil {
		proxy := g.ProxyRenderable()
		pipes.BlendMode.SetBlendMode(proxy, proxy.LayerBlendMode(), set)
		pipes.mustRenderPipe(proxy.view.PipeKey()).AddRenderable(proxy, set)
	}

	if root.SortChildren {
		root.SortChildrenDepth()
	}

	for _, child := range root.children {
		collectRenderables(child, set, pipes)
	}

	pipes.buildEnd(set)
}

// collectRenderables appends the instructions for n and its subtree.
func collectRenderables(n *Node, set *InstructionSet, pipes *RenderPipes) {
	// Both the visible and renderable bits must be set.
	if n.visibleRenderable < visibleRenderable || !n.includeInBuild {
		return
	}

	if n.SortChildren {
		n.SortChildrenDepth()
	}

	if n.isSimple {
		collectRenderablesSimple(n, set, pipes)
	} else {
		collectRenderablesAdvanced(n, set, pipes)
	}
}

func collectRenderablesSimple(n *Node, set *InstructionSet, pipes *RenderPipes) {
	if n.view != nil {
		pipes.BlendMode.SetBlendMode(n, n.layerBlendMode, set)
		n.didViewUpdate = false
		pipes.mustRenderPipe(n.view.PipeKey()).AddRenderable(n, set)
	}

	// isSimple is false for every layer root, so this only trips if the
	// flag was forced out of sync.
	if n.layerGroup != nil {
		if globalDebug {
			panic("canopy debug: layer root " + n.Name + " reached the simple path")
		}
		return
	}

	for _, child := range n.children {
		collectRenderables(child, set, pipes)
	}
}

func collectRenderablesAdvanced(n *Node, set *InstructionSet, pipes *RenderPipes) {
	for _, e := range n.effects {
		pipes.mustInstructionPipe(e.PipeKey()).Push(e, n, set)
	}

	if n.layerGroup != nil {
		pipes.Layer.AddLayerGroup(n.layerGroup, set)
	} else {
		if n.view != nil {
			pipes.BlendMode.SetBlendMode(n, n.layerBlendMode, set)
			n.didViewUpdate = false
			pipes.mustRenderPipe(n.view.PipeKey()).AddRenderable(n, set)
		}
		for _, child := range n.children {
			collectRenderables(child, set, pipes)
		}
	}

	for i := len(n.effects) - 1; i >= 0; i-- {
		e := n.effects[i]
		pipes.mustInstructionPipe(e.PipeKey()).Pop(e, n, set)
	}
}
