// ABOUTME: WebSocket control bridge for remote playback control
// ABOUTME: Manages client connections, command dispatch and status broadcast
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clearwave-audio/clearwave-go/internal/engine"
	"github.com/clearwave-audio/clearwave-go/internal/spectrum"
)

const (
	// DefaultStatusInterval is how often status is pushed to all clients.
	DefaultStatusInterval = 500 * time.Millisecond

	sendBuffer = 64
)

// Config holds control bridge configuration.
type Config struct {
	Port           int
	Engine         *engine.Engine
	Analyzer       *spectrum.Analyzer // optional, enables spectrum frames
	StatusInterval time.Duration
}

// Server is the WebSocket control bridge. Commands arrive as JSON
// messages and are applied to the engine; the engine's non-blocking
// control surface keeps the read loop responsive.
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	id       string
	conn     *websocket.Conn
	sendChan chan Message
}

// New creates a control bridge around the engine.
func New(config Config) *Server {
	if config.StatusInterval == 0 {
		config.StatusInterval = DefaultStatusInterval
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			// Local network control surface; no origin allowlist.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		clients:  make(map[string]*client),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc("/control", s.handleWebSocket)
	return s
}

// Handler exposes the HTTP mux, used by tests and embedding servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the bridge until Stop is called. It blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("Control bridge listening on %s", addr)

	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		log.Printf("Control bridge shutting down")
	case err := <-errChan:
		log.Printf("Control bridge HTTP error: %v", err)
		serverErr = err
		s.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("Control bridge shutdown error: %v", err)
	}

	s.wg.Wait()
	if serverErr != nil {
		return fmt.Errorf("control bridge failed: %w", serverErr)
	}
	return nil
}

// Stop signals Start to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// broadcastLoop pushes the playback status to every client on a fixed
// interval so remotes track position without polling.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.broadcast(Message{Type: TypeStatus, Payload: s.statusPayload()})
		}
	}
}

func (s *Server) broadcast(msg Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.send(c, msg)
	}
}

// send queues a message for the client's writer. A slow client drops
// messages instead of stalling the bridge.
func (s *Server) send(c *client, msg Message) {
	select {
	case c.sendChan <- msg:
	default:
		log.Printf("Client %s send queue full, dropping %s", c.id, msg.Type)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("Control client connected from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan Message, sendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.sendChan)
		log.Printf("Control client disconnected: %s", c.id)
	}()

	go s.clientWriter(c)

	// New clients get the current state right away.
	s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Control read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(c, errorMessage("bad_message", err.Error()))
			continue
		}
		s.handleMessage(c, msg)
	}
}

// clientWriter drains the client's send queue onto the socket. It exits
// when the channel is closed on disconnect.
func (s *Server) clientWriter(c *client) {
	for msg := range c.sendChan {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("Client %s write error: %v", c.id, err)
			return
		}
	}
}

func (s *Server) handleMessage(c *client, msg Message) {
	eng := s.config.Engine

	switch msg.Type {
	case TypePlay:
		var req PlayRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			s.send(c, errorMessage("bad_payload", err.Error()))
			return
		}
		if err := eng.Play(req.TrackID); err != nil {
			s.send(c, errorMessage("play_failed", err.Error()))
			return
		}
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypePause:
		eng.Pause()
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeResume:
		eng.Resume()
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeStop:
		eng.Stop()
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeSeek:
		var req SeekRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			s.send(c, errorMessage("bad_payload", err.Error()))
			return
		}
		eng.Seek(req.Seconds)
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeStatus:
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeTracks:
		s.send(c, Message{Type: TypeTracks, Payload: s.trackListPayload()})

	case TypeDevices:
		devices, err := eng.ListOutputDevices()
		if err != nil {
			s.send(c, errorMessage("devices_failed", err.Error()))
			return
		}
		payload := DeviceListPayload{Devices: make([]DevicePayload, len(devices))}
		for i, d := range devices {
			payload.Devices[i] = DevicePayload{ID: d.ID, Label: d.Label, Exclusive: d.Exclusive}
		}
		s.send(c, Message{Type: TypeDevices, Payload: payload})

	case TypeSetDevice:
		var req DeviceRequest
		if err := decodePayload(msg.Payload, &req); err != nil {
			s.send(c, errorMessage("bad_payload", err.Error()))
			return
		}
		eng.SetOutputDevice(req.DeviceID)
		s.send(c, Message{Type: TypeStatus, Payload: s.statusPayload()})

	case TypeRescan:
		if err := eng.Library().Rescan(); err != nil {
			s.send(c, errorMessage("rescan_failed", err.Error()))
			return
		}
		s.send(c, Message{Type: TypeTracks, Payload: s.trackListPayload()})

	case TypeSpectrum:
		if s.config.Analyzer == nil {
			s.send(c, errorMessage("no_analyzer", "spectrum analysis is not enabled"))
			return
		}
		bands, peaks := s.config.Analyzer.GetDisplayFrame()
		s.send(c, Message{Type: TypeSpectrum, Payload: SpectrumPayload{Bands: bands, Peaks: peaks}})

	default:
		s.send(c, errorMessage("unknown_command", fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (s *Server) statusPayload() StatusPayload {
	st := s.config.Engine.Status()
	return StatusPayload{
		State:            string(st.State),
		TrackID:          st.TrackID,
		TrackName:        st.TrackName,
		DeviceID:         st.DeviceID,
		Position:         st.Position,
		Duration:         st.Duration,
		SampleRate:       st.SampleRate,
		Channels:         st.Channels,
		BitDepth:         st.BitDepth,
		BitPerfect:       st.BitPerfect,
		BitPerfectReason: st.BitPerfectReason,
	}
}

func (s *Server) trackListPayload() TrackListPayload {
	tracks := s.config.Engine.ListTracks()
	payload := TrackListPayload{Tracks: make([]TrackPayload, len(tracks))}
	for i, t := range tracks {
		payload.Tracks[i] = TrackPayload{ID: t.ID, Name: t.Name, Path: t.Path}
	}
	return payload
}

// decodePayload re-marshals the generic payload into a typed struct.
func decodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func errorMessage(code, detail string) Message {
	return Message{Type: TypeError, Payload: ErrorPayload{Error: code, Message: detail}}
}
