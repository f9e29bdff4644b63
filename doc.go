// Package canopy is a retained-mode 2D scene graph for [Ebitengine] that
// compiles its tree into cached instruction sets.
//
// # Scene graph
//
// Every element is a [Node]. A node may carry a [View] (what it draws), an
// ordered stack of [Effect] values (what brackets its subtree) and children.
//
//	root := canopy.NewContainer("root")
//	hero := canopy.NewSprite("hero", heroImg)
//	hero.SetPosition(100, 50)
//	root.AddChild(hero)
//
// Setting transform fields directly is allowed; call [Node.MarkDirty]
// afterwards, or use the setters, which do it for you.
//
// # Layer groups
//
// A node that calls [Node.EnableLayerGroup] becomes a layer root. Its
// subtree is compiled into its own [InstructionSet] and rebuilt only when its
// structure changes: children added, removed or reordered, visibility, effects,
// views or blend modes changed. Moving a node never triggers a rebuild.
// The parent group refers to a nested group with a single
// [LayerGroupInstruction], so a change deep in one group leaves every other
// group's set untouched. The root passed to [Renderer.Render] is always a
// layer root.
//
// # Pipes
//
// [BuildInstructions] dispatches views and effects by [PipeKey] through a
// [RenderPipes] registry. Built-in pipes batch sprites by image, draw meshes,
// switch blend modes and color masks, and bracket subtrees with masks and
// filters. Custom views register a [RenderPipe]; custom effects register an
// [InstructionPipe]; the [Renderer] executes their instructions through an
// [InstructionExecutor].
//
// # Quick start
//
//	canopy.Run(root, canopy.RunConfig{Title: "demo", Width: 640, Height: 480})
//
// For full control implement [ebiten.Game] and call [Renderer.Render] from
// Draw.
//
// # Logging
//
// canopy logs through [log/slog] and is silent by default; see [SetLogger].
//
// [Ebitengine]: https://ebitengine.org
package canopy
