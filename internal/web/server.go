// Package web serves the live label over HTTP: a page sized like the demo
// canvas, a JSON status endpoint, and websocket streams of status changes
// and rendered frames.
package web

import (
	"context"
	"html/template"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/petems/live-classify/internal/classify"
	"github.com/petems/live-classify/internal/surface"
	"github.com/rs/zerolog"
)

// FrameFunc renders the frame that goes with a snapshot, JPEG encoded.
type FrameFunc func(snap classify.Snapshot) ([]byte, error)

type Options struct {
	Addr   string
	Mode   string // "video" or "audio"
	LoopID string
	Width  int
	Height int
	State  surface.StateReader

	// Frames is optional; without it only status is streamed.
	Frames   FrameFunc
	FrameFPS int // default 15
	TickFPS  int // rate Render is called at, default 60

	Logger zerolog.Logger
}

// Status is what /api/status and /ws/status carry.
type Status struct {
	classify.Snapshot
	Mode   string `json:"mode"`
	Loop   string `json:"loop,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Server is a render surface backed by a fiber app.
type Server struct {
	app  *fiber.App
	opts Options
	log  zerolog.Logger

	statusHub *hub
	frameHub  *hub

	mu         sync.Mutex
	frameEvery int
	ticks      int
	last       classify.Snapshot
	sent       bool
}

var _ surface.Surface = (*Server)(nil)

func NewServer(opts Options) *Server {
	if opts.FrameFPS <= 0 {
		opts.FrameFPS = 15
	}
	if opts.TickFPS <= 0 {
		opts.TickFPS = 60
	}
	every := opts.TickFPS / opts.FrameFPS
	if every < 1 {
		every = 1
	}

	log := opts.Logger.With().Str("component", "web").Logger()
	s := &Server{
		opts:       opts,
		log:        log,
		statusHub:  newHub("status", log),
		frameHub:   newHub("frames", log),
		frameEvery: every,
	}

	app := fiber.New(fiber.Config{
		AppName:               "live-classify",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)
	app.Get("/api/status", s.handleStatus)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/frames", websocket.New(s.handleFramesWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on opts.Addr until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.run()
	go s.frameHub.run()
	defer s.statusHub.stop()
	defer s.frameHub.stop()

	s.log.Info().Str("url", "http://"+ln.Addr().String()).Msg("Web surface listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case <-ctx.Done():
		// Hubs first so websocket handlers return before shutdown waits
		s.statusHub.stop()
		s.frameHub.stop()
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Render broadcasts status changes and, while someone is watching, frames.
func (s *Server) Render(snap classify.Snapshot) {
	s.mu.Lock()
	changed := !s.sent || classify.Changed(s.last, snap)
	s.sent = true
	s.last = snap
	s.ticks++
	frameDue := s.ticks%s.frameEvery == 0
	s.mu.Unlock()

	if changed {
		if err := s.statusHub.broadcastJSON(s.statusOf(snap)); err != nil {
			s.log.Error().Err(err).Msg("Failed to encode status")
		}
	}

	if s.opts.Frames == nil || !frameDue || s.frameHub.clientCount() == 0 {
		return
	}
	data, err := s.opts.Frames(snap)
	if err != nil {
		s.log.Debug().Err(err).Msg("Frame not rendered")
		return
	}
	s.frameHub.broadcastBinary(data)
}

func (s *Server) statusOf(snap classify.Snapshot) Status {
	return Status{
		Snapshot: snap,
		Mode:     s.opts.Mode,
		Loop:     s.opts.LoopID,
		Width:    s.opts.Width,
		Height:   s.opts.Height,
	}
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return indexPage.Execute(c.Response().BodyWriter(), s.statusOf(s.opts.State.Snapshot()))
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusOf(s.opts.State.Snapshot()))
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	data, err := jsonBytes(s.statusOf(s.opts.State.Snapshot()))
	if err != nil {
		c.Close()
		return
	}
	s.statusHub.serve(c, &message{typ: jsonMessage, data: data})
}

func (s *Server) handleFramesWS(c *websocket.Conn) {
	s.frameHub.serve(c, nil)
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>live-classify ({{.Mode}})</title>
<style>
  body { margin: 0; background: #111; display: flex; justify-content: center; align-items: center; height: 100vh; }
  #stage { position: relative; width: {{.Width}}px; height: {{.Height}}px; background: #000; }
  #frame { width: 100%; height: 100%; display: block; }
  #label { position: absolute; left: 0; right: 0; bottom: 0; padding: 8px; color: #fff;
           font: 24px sans-serif; text-align: center; background: rgba(0,0,0,0.4); }
</style>
</head>
<body>
<div id="stage">
  <img id="frame" alt="">
  <div id="label">{{.Label}}</div>
</div>
<script>
  const base = (location.protocol === "https:" ? "wss://" : "ws://") + location.host;
  const label = document.getElementById("label");
  const frame = document.getElementById("frame");
  new WebSocket(base + "/ws/status").onmessage = (e) => { label.textContent = JSON.parse(e.data).label; };
  const frames = new WebSocket(base + "/ws/frames");
  frames.binaryType = "blob";
  frames.onmessage = (e) => {
    const old = frame.src;
    frame.src = URL.createObjectURL(e.data);
    if (old) URL.revokeObjectURL(old);
  };
</script>
</body>
</html>
`))
