package canopy

import (
	"fmt"
	"log/slog"
	"time"
)

// globalDebug enables the tree checks below and the simple-path guard in the
// compiler. Set with SetDebugMode or RendererConfig.Debug.
var globalDebug bool

// SetDebugMode turns package-wide debug checks on or off.
func SetDebugMode(on bool) {
	globalDebug = on
}

// debugStats holds per-frame timing and instruction metrics.
type debugStats struct {
	prepareTime time.Duration
	executeTime time.Duration
	stats       RenderStats
}

// debugLog reports frame stats at debug level.
func debugLog(s debugStats) {
	Logger().Debug("canopy frame",
		slog.Duration("prepare", s.prepareTime),
		slog.Duration("execute", s.executeTime),
		slog.Int("groupsRebuilt", s.stats.GroupsRebuilt),
		slog.Int("instructions", s.stats.Instructions),
		slog.Int("batches", s.stats.Batches),
		slog.Int("drawCalls", s.stats.DrawCalls),
	)
}

// debugLogRebuild reports one group rebuild, naming its set by UID.
func debugLogRebuild(g *LayerGroup) {
	set := g.InstructionSet()
	Logger().Debug("canopy group rebuilt",
		slog.String("root", g.root.Name),
		slog.String("set", set.UID),
		slog.Int("instructions", set.Len()),
	)
}

// debugCheckDisposed panics when a disposed node is used in a tree operation.
func debugCheckDisposed(n *Node, op string) {
	if n.disposed {
		panic(fmt.Sprintf("canopy debug: %s on disposed node %q", op, n.Name))
	}
}

const debugMaxTreeDepth = 32

// debugCheckTreeDepth warns if the node sits deeper than debugMaxTreeDepth.
func debugCheckTreeDepth(n *Node) {
	depth := 0
	for p := n; p != nil; p = p.Parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		Logger().Warn("tree depth exceeds threshold",
			slog.String("node", n.Name),
			slog.Int("depth", depth),
			slog.Int("threshold", debugMaxTreeDepth))
	}
}

const debugMaxChildCount = 1000

// debugCheckChildCount warns if a node has more than debugMaxChildCount children.
func debugCheckChildCount(n *Node) {
	if len(n.children) > debugMaxChildCount {
		Logger().Warn("child count exceeds threshold",
			slog.String("node", n.Name),
			slog.Int("children", len(n.children)),
			slog.Int("threshold", debugMaxChildCount))
	}
}
