package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rover-remote/internal/controller"
	"rover-remote/internal/protocol"
	"rover-remote/internal/rtsp"
	"rover-remote/internal/transport"
)

const DefaultConfirmTimeout = 30 * time.Second

// Config for the server
type Config struct {
	Listen     string
	VideoURL   string
	ICEServers []string

	// Confirm asks connected browsers before a serial device is opened
	Confirm        bool
	ConfirmTimeout time.Duration
	AutoConnect    bool
	WatchInterval  time.Duration
}

// Deps are the collaborators the server drives
type Deps struct {
	Controller *controller.Controller
	Serial     *transport.Transport
	Log        zerolog.Logger
	VideoLog   zerolog.Logger
	WebRTCLog  zerolog.Logger
}

// Server is the rover remote: static UI, WebSocket control channel and
// the video relay
type Server struct {
	cfg      Config
	log      zerolog.Logger
	rtcLog   zerolog.Logger
	ctrl     *controller.Controller
	serial   *transport.Transport
	video    *rtsp.Client
	upgrader websocket.Upgrader
	staticFS fs.FS
	httpSrv  *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	clients   map[*Client]bool
	clientsMu sync.RWMutex

	mu       sync.Mutex
	serialEv transport.Event
	videoEv  rtsp.Event

	permMu  sync.Mutex
	asking  *protocol.PermissionPayload
	answer  chan bool
	granted map[string]bool
}

// New creates a server. staticFS must contain a web/ directory.
func New(cfg Config, staticFS fs.FS, deps Deps) (*Server, error) {
	webFS, err := fs.Sub(staticFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded web files: %w", err)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		log:      deps.Log,
		rtcLog:   deps.WebRTCLog,
		ctrl:     deps.Controller,
		serial:   deps.Serial,
		staticFS: webFS,
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*Client]bool),
		granted:  make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local network use
			},
		},
	}

	s.video = rtsp.NewClient(deps.VideoLog, s.onVideo)
	s.serialEv = transport.Event{Status: s.serial.Status()}
	s.videoEv = rtsp.Event{Status: rtsp.StatusStopped}

	s.serial.Subscribe(s.onSerial)
	if cfg.Confirm {
		s.serial.SetAuthorizer(transport.AuthorizerFunc(s.authorize))
	}

	return s, nil
}

// Handler serves the UI and the /ws control channel
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/", http.FileServer(http.FS(s.staticFS)))
	return mux
}

// Start acquires the serial device, starts the video and serves HTTP until
// Stop
func (s *Server) Start() error {
	go s.serial.Watch(s.ctx, s.cfg.WatchInterval, s.cfg.AutoConnect)
	if s.cfg.AutoConnect {
		go s.connectSerial()
	}

	if s.cfg.VideoURL != "" {
		go func() {
			// failures are reported through onVideo and retried
			_ = s.video.Play(s.cfg.VideoURL)
		}()
	}
	go s.broadcastRTP()

	s.httpSrv = &http.Server{Addr: s.cfg.Listen, Handler: s.Handler()}
	s.log.Info().Str("addr", s.cfg.Listen).Msg("[server] listen")
	return s.httpSrv.ListenAndServe()
}

// Stop idles the motors and releases every resource
func (s *Server) Stop() {
	s.cancel()
	// queues the release; serial.Close below writes it before closing
	s.ctrl.Stop()

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	_ = s.video.Close()
	if err := s.serial.Close(); err != nil {
		s.log.Warn().Err(err).Msg("[server] serial close")
	}

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(ctx)
	}
}

func (s *Server) connectSerial() {
	if err := s.serial.Connect(s.ctx); err != nil {
		s.log.Debug().Err(err).Msg("[server] serial connect")
	}
}

// broadcastRTP fans the camera packets out to every client
func (s *Server) broadcastRTP() {
	packets := s.video.RTPChannel()

	for {
		select {
		case <-s.video.Done():
			return
		case packet := <-packets:
			s.clientsMu.RLock()
			for client := range s.clients {
				select {
				case client.rtpChan <- packet:
				default:
					// slow viewer, drop for this client
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

func (s *Server) onSerial(ev transport.Event) {
	s.mu.Lock()
	s.serialEv = ev
	s.mu.Unlock()

	s.broadcast(protocol.TypeStatus, s.status())
}

func (s *Server) onVideo(ev rtsp.Event) {
	s.mu.Lock()
	s.videoEv = ev
	s.mu.Unlock()

	s.broadcast(protocol.TypeStatus, s.status())
}

func (s *Server) status() protocol.StatusPayload {
	s.mu.Lock()
	serialEv, videoEv := s.serialEv, s.videoEv
	s.mu.Unlock()

	last := s.ctrl.Last()
	p := protocol.StatusPayload{
		Serial:        string(s.serial.Status()),
		SerialDevice:  serialEv.Device,
		SerialMessage: serialEv.Message(),
		Video:         string(s.video.Status()),
		VideoURL:      s.video.URL(),
		Left:          last.Left,
		Right:         last.Right,
	}
	if dev, ok := s.serial.Device(); ok {
		p.SerialDevice = dev.Name
	}
	if videoEv.Err != nil {
		p.VideoMessage = videoEv.Err.Error()
	}
	return p
}

// authorize asks the browsers for access to dev. Without a client, or
// without an answer in time, the request stays pending.
func (s *Server) authorize(ctx context.Context, dev transport.Device) error {
	s.permMu.Lock()
	if s.granted[dev.Name] {
		s.permMu.Unlock()
		return nil
	}
	if s.clientCount() == 0 {
		s.permMu.Unlock()
		return fmt.Errorf("%w: no client to confirm %s", transport.ErrPermissionPending, dev.Name)
	}
	req := &protocol.PermissionPayload{Device: dev.Name, Product: dev.Product}
	answer := make(chan bool, 1)
	s.asking, s.answer = req, answer
	s.permMu.Unlock()

	defer func() {
		s.permMu.Lock()
		s.asking, s.answer = nil, nil
		s.permMu.Unlock()
	}()

	s.broadcast(protocol.TypePermission, req)

	timer := time.NewTimer(s.cfg.ConfirmTimeout)
	defer timer.Stop()

	select {
	case granted := <-answer:
		if !granted {
			return fmt.Errorf("%w: %s", transport.ErrPermissionDenied, dev.Name)
		}
		s.permMu.Lock()
		s.granted[dev.Name] = true
		s.permMu.Unlock()
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no answer for %s", transport.ErrPermissionPending, dev.Name)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", transport.ErrPermissionPending, ctx.Err())
	}
}

func (s *Server) answerPermission(p protocol.PermissionPayload) {
	s.permMu.Lock()
	defer s.permMu.Unlock()

	if s.answer == nil || (p.Device != "" && p.Device != s.asking.Device) {
		return
	}
	select {
	case s.answer <- p.Granted:
	default:
		// already answered by another client
	}
}

func (s *Server) pendingPermission() *protocol.PermissionPayload {
	s.permMu.Lock()
	defer s.permMu.Unlock()
	return s.asking
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		s.log.Error().Err(err).Str("type", msgType).Msg("[server] encode")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.send(data)
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("[server] websocket upgrade")
		return
	}

	client := newClient(conn, s)

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	go client.writePump()
	go client.readPump()

	client.sendMessage(protocol.TypeStatus, s.status())
	if req := s.pendingPermission(); req != nil {
		client.sendMessage(protocol.TypePermission, req)
	}

	go func() {
		if err := client.initWebRTC(); err != nil {
			s.log.Warn().Err(err).Msg("[server] webrtc init")
		}
	}()
}

func (s *Server) removeClient(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}
