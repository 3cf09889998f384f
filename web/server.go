package web

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/renderer"
	"github.com/gorilla/websocket"
)

const (
	// Time to wait before checking for new work once the sample target
	// has been reached.
	idlePollInterval = 50 * time.Millisecond

	writeTimeout = 5 * time.Second
)

// Sent as a text message before every frame.
type frameInfo struct {
	Type          string  `json:"type"`
	Width         uint32  `json:"width"`
	Height        uint32  `json:"height"`
	Samples       uint32  `json:"samples"`
	TargetSamples uint32  `json:"targetSamples"`
	Radius        float32 `json:"radius"`
	StoredPhotons uint32  `json:"storedPhotons"`
	RenderTimeMs  float64 `json:"renderTimeMs"`
}

// Commands accepted from clients.
type clientCommand struct {
	Command string `json:"command"`
}

// Server streams progressive frames to websocket clients. Each sample is
// sent as a JSON frameInfo text message followed by a binary PNG message.
type Server struct {
	logger   log.Logger
	renderer renderer.Renderer
	addr     string
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*websocket.Conn]*sync.Mutex
	lastInfo  *frameInfo
	lastFrame []byte
}

// Create a preview server for the renderer listening on addr.
func NewServer(r renderer.Renderer, addr string) *Server {
	return &Server{
		logger:   log.New("web server"),
		renderer: r,
		addr:     addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Handler returns the http handler serving the preview page and the
// websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHome)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Serve listens for http connections and renders until stop is closed or
// the renderer fails.
func (s *Server) Serve(stop <-chan struct{}) error {
	httpServer := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errChan := make(chan error, 2)
	go func() {
		s.logger.Noticef("serving preview on http://%s", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	loopStop := make(chan struct{})
	go func() {
		errChan <- s.RenderLoop(loopStop)
	}()

	var err error
	select {
	case <-stop:
	case err = <-errChan:
	}
	close(loopStop)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	httpServer.Shutdown(ctx)
	s.closeClients()
	return err
}

// RenderLoop renders samples and broadcasts each resulting frame until stop
// is closed. Once the sample target is reached the loop idles until a
// client resets the accumulation.
func (s *Server) RenderLoop(stop <-chan struct{}) error {
	target := s.renderer.Options().SamplesPerPixel
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if target != 0 && s.renderer.SampleCount() >= target {
			select {
			case <-stop:
				return nil
			case <-time.After(idlePollInterval):
			}
			continue
		}

		if err := s.renderer.Render(); err != nil {
			return err
		}
		if err := s.broadcastFrame(); err != nil {
			return err
		}
	}
}

func (s *Server) serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warningf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = connMutex
	info, frame := s.lastInfo, s.lastFrame
	s.mu.Unlock()
	defer s.removeClient(conn)

	s.logger.Infof("client %s connected", conn.RemoteAddr())

	// Bring the client up to date with the last rendered frame
	if frame != nil {
		if err = s.send(conn, connMutex, info, frame); err != nil {
			return
		}
	}

	for {
		var cmd clientCommand
		if err = conn.ReadJSON(&cmd); err != nil {
			s.logger.Infof("client %s disconnected", conn.RemoteAddr())
			return
		}

		switch cmd.Command {
		case "reset":
			s.logger.Notice("resetting accumulation at client request")
			s.renderer.Reset()
		default:
			s.logger.Warningf("ignoring unknown client command %q", cmd.Command)
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, connMutex := range s.clients {
		connMutex.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "render complete"),
			time.Now().Add(writeTimeout),
		)
		connMutex.Unlock()
		conn.Close()
	}
}

// Encode the current frame and send it to all connected clients.
func (s *Server) broadcastFrame() error {
	opts := s.renderer.Options()
	frame, err := s.renderer.Frame()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, renderer.Tonemap(frame, opts.FrameW, opts.FrameH, opts.Exposure)); err != nil {
		return err
	}

	stats := s.renderer.Stats()
	info := &frameInfo{
		Type:          "frame",
		Width:         opts.FrameW,
		Height:        opts.FrameH,
		Samples:       stats.Samples,
		TargetSamples: opts.SamplesPerPixel,
		Radius:        stats.Radius,
		StoredPhotons: stats.StoredPhotons,
		RenderTimeMs:  float64(stats.RenderTime.Nanoseconds()) / 1e6,
	}
	data := buf.Bytes()

	s.mu.Lock()
	s.lastInfo, s.lastFrame = info, data
	clients := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for conn, connMutex := range s.clients {
		clients[conn] = connMutex
	}
	s.mu.Unlock()

	for conn, connMutex := range clients {
		if err := s.send(conn, connMutex, info, data); err != nil {
			s.logger.Infof("dropping client %s: %v", conn.RemoteAddr(), err)
			s.removeClient(conn)
			conn.Close()
		}
	}
	return nil
}

func (s *Server) send(conn *websocket.Conn, connMutex *sync.Mutex, info *frameInfo, frame []byte) error {
	connMutex.Lock()
	defer connMutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(info); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}
