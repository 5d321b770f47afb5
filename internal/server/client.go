package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pwebrtc "github.com/pion/webrtc/v3"

	"rover-remote/internal/drive"
	"rover-remote/internal/joystick"
	"rover-remote/internal/protocol"
	"rover-remote/internal/rtsp"
	"rover-remote/internal/webrtc"
)

// Client represents a connected WebSocket client
type Client struct {
	conn    *websocket.Conn
	server  *Server
	out     chan []byte
	rtpChan chan []byte // per-client RTP buffer
	done    chan struct{}

	mu      sync.Mutex
	webrtc  *webrtc.Session
	closed  bool
	driving bool // this client moved the stick or seek bars last
}

func newClient(conn *websocket.Conn, s *Server) *Client {
	return &Client{
		conn:    conn,
		server:  s,
		out:     make(chan []byte, 256),
		rtpChan: make(chan []byte, 500),
		done:    make(chan struct{}),
	}
}

func (c *Client) initWebRTC() error {
	session, err := webrtc.NewSession(webrtc.Config{ICEServers: c.server.cfg.ICEServers}, c.server.rtcLog, func(candidate *pwebrtc.ICECandidate) {
		cand := candidate.ToJSON()
		payload := protocol.ICECandidatePayload{Candidate: cand.Candidate}
		if cand.SDPMid != nil {
			payload.SDPMid = *cand.SDPMid
		}
		if cand.SDPMLineIndex != nil {
			payload.SDPMLineIndex = *cand.SDPMLineIndex
		}
		c.sendMessage(protocol.TypeICECandidate, payload)
	})
	if err != nil {
		return err
	}

	if err = session.AddVideoTrack(); err != nil {
		_ = session.Close()
		return err
	}

	offer, err := session.CreateOffer()
	if err != nil {
		_ = session.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.Close()
	}
	c.webrtc = session
	c.mu.Unlock()

	c.sendMessage(protocol.TypeOffer, protocol.SDPPayload{SDP: offer})

	go c.forwardRTP(session)
	return nil
}

func (c *Client) session() *webrtc.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.webrtc
}

func (c *Client) forwardRTP(session *webrtc.Session) {
	for {
		select {
		case <-c.done:
			return
		case packet := <-c.rtpChan:
			if err := session.WriteRTP(packet); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		c.server.log.Error().Err(err).Str("type", msgType).Msg("[server] encode")
		return
	}
	c.send(data)
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
		c.server.log.Warn().Msg("[server] client send buffer full, dropping message")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		// a vanished driver must not leave the rover moving
		if c.isDriving() {
			c.server.ctrl.Stop()
		}
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Debug().Err(err).Msg("[server] websocket")
			}
			return
		}

		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(protocol.ErrInvalidMessage, "Failed to parse message")
		return
	}

	s := c.server

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeAnswer:
		var payload protocol.SDPPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if session := c.session(); session != nil {
			if err := session.SetAnswer(payload.SDP); err != nil {
				s.log.Warn().Err(err).Msg("[server] webrtc answer")
			}
		}

	case protocol.TypeICECandidate:
		var payload protocol.ICECandidatePayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if session := c.session(); session != nil {
			if err := session.AddICECandidate(payload.Candidate, payload.SDPMid, payload.SDPMLineIndex); err != nil {
				s.log.Warn().Err(err).Msg("[server] webrtc candidate")
			}
		}

	case protocol.TypePointer:
		var payload protocol.PointerPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Bad pointer payload")
			return
		}
		c.handlePointer(payload)

	case protocol.TypeDrive:
		var payload protocol.DrivePayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Bad drive payload")
			return
		}
		cmd := drive.NewCommand(payload.Left, payload.Right)
		c.setDriving(!cmd.IsStop())
		s.ctrl.Direct(cmd.Left, cmd.Right)

	case protocol.TypeStop:
		c.setDriving(false)
		s.ctrl.Stop()

	case protocol.TypeConnect:
		// Connect may wait on a permission answer from this very client
		go func() {
			if err := s.serial.Connect(s.ctx); err != nil {
				c.sendError(protocol.ErrSerial, err.Error())
			}
		}()

	case protocol.TypeVideo:
		var payload protocol.VideoPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, "Bad video payload")
			return
		}
		c.handleVideo(payload.URL)

	case protocol.TypePermission:
		var payload protocol.PermissionPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		s.answerPermission(payload)

	default:
		s.log.Debug().Str("type", msg.Type).Msg("[server] unknown message")
	}
}

func (c *Client) handlePointer(p protocol.PointerPayload) {
	phase := joystick.Phase(p.Phase)
	if !phase.Valid() {
		c.sendError(protocol.ErrInvalidMessage, "Unknown pointer phase: "+p.Phase)
		return
	}

	c.setDriving(!phase.Released())
	st := c.server.ctrl.Pointer(joystick.Pointer{X: p.X, Y: p.Y, Phase: phase}, p.Width, p.Height)

	c.sendMessage(protocol.TypeStick, protocol.StickPayload{
		CenterX:   st.CenterX,
		CenterY:   st.CenterY,
		Radius:    st.Radius,
		HatRadius: st.HatRadius,
		HandleX:   st.HandleX,
		HandleY:   st.HandleY,
		Active:    st.Active,
	})
}

func (c *Client) handleVideo(url string) {
	video := c.server.video
	if url == "" {
		video.Stop()
		return
	}
	if err := rtsp.ValidateURL(url); err != nil {
		c.sendError(protocol.ErrRTSP, err.Error())
		return
	}
	go func() {
		// errors reach every client as a status broadcast
		_ = video.Play(url)
	}()
}

func (c *Client) setDriving(v bool) {
	c.mu.Lock()
	c.driving = v
	c.mu.Unlock()
}

func (c *Client) isDriving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driving
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	session := c.webrtc
	c.webrtc = nil
	c.mu.Unlock()

	// outside c.mu, peer connection callbacks may still send
	if session != nil {
		_ = session.Close()
	}
}
