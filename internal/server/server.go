package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/session"
	"daltonize-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

// Options wires the server to the rest of the service. Only Session is
// required.
type Options struct {
	Session *session.State
	Status  func() map[string]any
	Capture func() ([]string, error)
	Latest  func() (processing.Result, bool)
	// Messages are extra JSON payloads pushed to every client.
	Messages <-chan any
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	opts     Options
}

var errCaptureUnavailable = errors.New("capture not available")

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

type clientRequest struct {
	Type    string `json:"type"`
	Mode    string `json:"mode,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type settingsRequest struct {
	Mode       *string `json:"mode"`
	Correction *bool   `json:"correction"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func New(cfg config.AppConfig, opts Options) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		opts:    opts,
	}
}

func (s *Server) Handler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/settings", s.handleSettings)
	mux.HandleFunc("/capture", s.handleCapture)
	mux.HandleFunc("/frame.jpg", s.handleFrame)
	return mux, nil
}

func Run(ctx context.Context, cfg config.AppConfig, opts Options) error {
	srv := New(cfg, opts)
	handler, err := srv.Handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, opts.Messages)
	go srv.watchSettings(ctx)
	go srv.previewLoop(ctx)

	slog.Info("server: listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSON(conn, writeMu, s.configPayload())
	_ = s.writeJSON(conn, writeMu, s.settingsMessage())

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request clientRequest
			if err := json.Unmarshal(payload, &request); err != nil {
				_ = s.writeJSON(conn, writeMu, errorMessage{Type: "error", Error: "invalid JSON"})
				continue
			}
			if reply := s.handleClientMessage(request); reply != nil {
				_ = s.writeJSON(conn, writeMu, reply)
			}
		}
	}()
}

// handleClientMessage applies one websocket request and returns the reply
// for the requesting client.
func (s *Server) handleClientMessage(req clientRequest) any {
	switch req.Type {
	case "set_mode":
		mode, err := colorblind.ParseMode(req.Mode)
		if err != nil {
			return errorMessage{Type: "error", Error: err.Error()}
		}
		s.opts.Session.SetMode(mode)
		return s.settingsMessage()
	case "set_correction":
		if req.Enabled == nil {
			return errorMessage{Type: "error", Error: "set_correction requires enabled"}
		}
		s.opts.Session.SetCorrection(*req.Enabled)
		return s.settingsMessage()
	case "capture":
		msg, _ := s.capture()
		return msg
	case "snapshot_request":
		return s.statusPayload()
	default:
		return errorMessage{Type: "error", Error: "unknown request type " + strconv.Quote(req.Type)}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, s.statusPayload())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorMessage{Type: "error", Error: "invalid JSON: " + err.Error()})
			return
		}
		if req.Mode != nil {
			mode, err := colorblind.ParseMode(*req.Mode)
			if err != nil {
				writeJSONResponse(w, http.StatusBadRequest, errorMessage{Type: "error", Error: err.Error()})
				return
			}
			s.opts.Session.SetMode(mode)
		}
		if req.Correction != nil {
			s.opts.Session.SetCorrection(*req.Correction)
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, s.settingsMessage())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	msg, err := s.capture()
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, processing.ErrNoFrame), errors.Is(err, errCaptureUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	writeJSONResponse(w, status, msg)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.opts.Latest == nil {
		http.Error(w, processing.ErrNoFrame.Error(), http.StatusServiceUnavailable)
		return
	}
	result, ok := s.opts.Latest()
	if !ok {
		http.Error(w, processing.ErrNoFrame.Error(), http.StatusServiceUnavailable)
		return
	}

	var frame types.Frame
	switch r.URL.Query().Get("view") {
	case "", "output":
		frame = result.Output
	case "original":
		frame = result.Original
	case "simulated":
		frame = result.Simulated
	default:
		http.Error(w, "view must be output, original or simulated", http.StatusBadRequest)
		return
	}

	data, err := EncodePreview(frame, 0, s.cfg.JPEGQuality)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) capture() (types.CaptureMessage, error) {
	if s.opts.Capture == nil {
		return types.CaptureMessage{Type: "capture", Error: errCaptureUnavailable.Error()}, errCaptureUnavailable
	}
	files, err := s.opts.Capture()
	if err != nil {
		slog.Warn("server: capture failed", "error", err)
		return types.CaptureMessage{Type: "capture", Files: files, Error: err.Error()}, err
	}
	return types.CaptureMessage{Type: "capture", Files: files}, nil
}

func (s *Server) configPayload() map[string]any {
	modes := make([]map[string]string, 0, len(colorblind.Modes()))
	for _, m := range colorblind.Modes() {
		modes = append(modes, map[string]string{"name": m.String(), "label": m.Label()})
	}
	return map[string]any{
		"type":          "config",
		"port":          s.cfg.Port,
		"source":        s.cfg.Source,
		"width":         s.cfg.Width,
		"height":        s.cfg.Height,
		"fps":           s.cfg.FPS,
		"mirror":        s.cfg.Mirror,
		"preview_fps":   s.cfg.PreviewFPS,
		"preview_width": s.cfg.PreviewWidth,
		"modes":         modes,
		"session_id":    s.opts.Session.ID(),
	}
}

func (s *Server) statusPayload() map[string]any {
	payload := map[string]any{}
	if s.opts.Status != nil {
		payload = s.opts.Status()
	}
	payload["type"] = "status"
	payload["status"] = colorblind.StatusText(s.opts.Session.Snapshot())
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	return payload
}

func (s *Server) settingsMessage() types.SettingsMessage {
	return settingsMessage(s.opts.Session.Snapshot())
}

func settingsMessage(cur colorblind.Settings) types.SettingsMessage {
	return types.SettingsMessage{
		Type:       "settings",
		Mode:       cur.Mode.String(),
		Label:      cur.Mode.Label(),
		Correction: cur.Correction,
		Status:     colorblind.StatusText(cur),
	}
}

// watchSettings pushes every session change to all clients, whichever
// control surface made it.
func (s *Server) watchSettings(ctx context.Context) {
	updates, cancel := s.opts.Session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case cur, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(settingsMessage(cur))
			if err != nil {
				continue
			}
			s.broadcastBytes(websocket.TextMessage, payload)
		}
	}
}

func (s *Server) previewLoop(ctx context.Context) {
	if s.opts.Latest == nil || s.cfg.PreviewFPS <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.PreviewFPS))
	defer ticker.Stop()

	var lastSeq uint64
	var lastSettings colorblind.Settings
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.clientCount() == 0 {
			continue
		}
		result, ok := s.opts.Latest()
		if !ok {
			continue
		}
		if sent && result.Original.Seq == lastSeq && result.Settings == lastSettings {
			continue
		}
		data, err := EncodePreview(result.Output, s.cfg.PreviewWidth, s.cfg.JPEGQuality)
		if err != nil {
			slog.Warn("server: preview encode failed", "error", err)
			continue
		}
		s.broadcastBytes(websocket.BinaryMessage, frameMessageBytes(types.FrameMessage{Seq: result.Original.Seq, JPEG: data}))
		lastSeq, lastSettings, sent = result.Original.Seq, result.Settings, true
	}
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	if messages == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			s.broadcastBytes(websocket.TextMessage, payload)
		}
	}
}

func (s *Server) broadcastBytes(messageType int, payload []byte) {
	var stale []*websocket.Conn
	s.mu.Lock()
	for conn, writeMu := range s.clients {
		if err := s.writeMessage(conn, writeMu, messageType, payload); err != nil {
			stale = append(stale, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range stale {
		s.removeClient(conn)
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
