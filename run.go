package canopy

import "github.com/hajimehoshi/ebiten/v2"

// RunConfig configures Run. Zero values select the defaults.
type RunConfig struct {
	// Title is the window title.
	Title string
	// Width and Height are the window and layout size. Default 640x480.
	Width, Height int
	// Renderer configures the renderer Run creates.
	Renderer RendererConfig
	// Camera is optional; nil draws with an identity view.
	Camera *Camera
	// OnUpdate runs once per tick before the camera is updated. A non-nil
	// error stops the loop and is returned by Run.
	OnUpdate func() error
}

// Run opens a window and drives root with a Renderer until the window is
// closed or OnUpdate fails. For full control implement ebiten.Game and call
// Renderer.Render from Draw.
func Run(root *Node, cfg RunConfig) error {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	return ebiten.RunGame(newGame(root, cfg))
}

// game adapts a scene root to ebiten.Game.
type game struct {
	root     *Node
	renderer *Renderer
	cfg      RunConfig
}

func newGame(root *Node, cfg RunConfig) *game {
	return &game{root: root, renderer: NewRenderer(cfg.Renderer), cfg: cfg}
}

func (g *game) Update() error {
	if g.cfg.OnUpdate != nil {
		if err := g.cfg.OnUpdate(); err != nil {
			return err
		}
	}
	if g.cfg.Camera != nil {
		g.cfg.Camera.Update(float32(1 / float64(ebiten.TPS())))
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	g.renderer.Render(screen, g.root, g.cfg.Camera)
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.cfg.Width, g.cfg.Height
}
