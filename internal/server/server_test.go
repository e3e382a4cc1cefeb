package server

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/session"
	"daltonize-go/internal/types"
)

func testResult() processing.Result {
	frame := types.NewFrame(8, 4)
	for i := range frame.Pix {
		frame.Pix[i] = uint8(i)
	}
	frame.Seq = 5
	return processing.ProcessFrame(colorblind.Transformer{}, frame, colorblind.Settings{Mode: colorblind.Deuteranopia})
}

func newTestServer(opts Options) *Server {
	if opts.Session == nil {
		opts.Session = session.New(colorblind.Settings{})
	}
	return New(config.Default(), opts)
}

func TestHandleConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 9999
	cfg.Width = 320
	srv := New(cfg, Options{Session: session.New(colorblind.Settings{})})

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload["port"].(float64) != 9999 {
		t.Fatalf("unexpected port: %v", payload["port"])
	}
	if payload["width"].(float64) != 320 {
		t.Fatalf("unexpected width: %v", payload["width"])
	}
	modes, ok := payload["modes"].([]any)
	if !ok || len(modes) != 4 {
		t.Fatalf("unexpected modes: %v", payload["modes"])
	}
}

func TestHandleSettingsPost(t *testing.T) {
	state := session.New(colorblind.Settings{})
	srv := newTestServer(Options{Session: state})

	req := httptest.NewRequest("POST", "/settings", strings.NewReader(`{"mode":"tritanopia","correction":true}`))
	rec := httptest.NewRecorder()
	srv.handleSettings(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var msg types.SettingsMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "tritanopia", msg.Mode)
	assert.True(t, msg.Correction)
	assert.Equal(t, "Filter: Tritanopia (Blue-Blind) with correction", msg.Status)
	assert.Equal(t, colorblind.Settings{Mode: colorblind.Tritanopia, Correction: true}, state.Snapshot())
}

func TestHandleSettingsRejectsUnknownMode(t *testing.T) {
	state := session.New(colorblind.Settings{Mode: colorblind.Protanopia})
	srv := newTestServer(Options{Session: state})

	req := httptest.NewRequest("POST", "/settings", strings.NewReader(`{"mode":"sepia","correction":true}`))
	rec := httptest.NewRecorder()
	srv.handleSettings(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, colorblind.Settings{Mode: colorblind.Protanopia}, state.Snapshot(), "a rejected request changes nothing")
}

func TestHandleSettingsMethod(t *testing.T) {
	srv := newTestServer(Options{})
	rec := httptest.NewRecorder()
	srv.handleSettings(rec, httptest.NewRequest("DELETE", "/settings", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCapture(t *testing.T) {
	srv := newTestServer(Options{
		Capture: func() ([]string, error) { return []string{"a.jpg", "b.jpg"}, nil },
	})
	rec := httptest.NewRecorder()
	srv.handleCapture(rec, httptest.NewRequest("POST", "/capture", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var msg types.CaptureMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, msg.Files)
	assert.Empty(t, msg.Error)
}

func TestHandleCaptureErrors(t *testing.T) {
	cases := []struct {
		name    string
		capture func() ([]string, error)
		want    int
	}{
		{"unavailable", nil, http.StatusServiceUnavailable},
		{"no frame", func() ([]string, error) { return nil, processing.ErrNoFrame }, http.StatusServiceUnavailable},
		{"write failed", func() ([]string, error) { return nil, errors.New("disk full") }, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(Options{Capture: tc.capture})
			rec := httptest.NewRecorder()
			srv.handleCapture(rec, httptest.NewRequest("POST", "/capture", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	srv := newTestServer(Options{})
	rec := httptest.NewRecorder()
	srv.handleCapture(rec, httptest.NewRequest("GET", "/capture", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleFrame(t *testing.T) {
	result := testResult()
	srv := newTestServer(Options{
		Latest: func() (processing.Result, bool) { return result, true },
	})

	for _, view := range []string{"", "original", "simulated"} {
		rec := httptest.NewRecorder()
		srv.handleFrame(rec, httptest.NewRequest("GET", "/frame.jpg?view="+view, nil))
		require.Equal(t, http.StatusOK, rec.Code, view)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		img, err := jpeg.Decode(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	}

	rec := httptest.NewRecorder()
	srv.handleFrame(rec, httptest.NewRequest("GET", "/frame.jpg?view=sideways", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFrameBeforeFirstFrame(t *testing.T) {
	srv := newTestServer(Options{
		Latest: func() (processing.Result, bool) { return processing.Result{}, false },
	})
	rec := httptest.NewRecorder()
	srv.handleFrame(rec, httptest.NewRequest("GET", "/frame.jpg", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStatusAddsClientCount(t *testing.T) {
	srv := newTestServer(Options{
		Status: func() map[string]any { return map[string]any{"metrics": map[string]any{"frames": 3}} },
	})
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "status", payload["type"])
	assert.Equal(t, "No filter applied", payload["status"])
	metrics := payload["metrics"].(map[string]any)
	assert.Equal(t, float64(0), metrics["ws_clients"])
}

func TestClientMessages(t *testing.T) {
	state := session.New(colorblind.Settings{})
	srv := newTestServer(Options{Session: state})

	reply := srv.handleClientMessage(clientRequest{Type: "set_mode", Mode: "Green"})
	assert.Equal(t, "deuteranopia", reply.(types.SettingsMessage).Mode)

	enabled := true
	reply = srv.handleClientMessage(clientRequest{Type: "set_correction", Enabled: &enabled})
	assert.True(t, reply.(types.SettingsMessage).Correction)
	assert.Equal(t, colorblind.Settings{Mode: colorblind.Deuteranopia, Correction: true}, state.Snapshot())

	reply = srv.handleClientMessage(clientRequest{Type: "set_correction"})
	assert.Equal(t, "error", reply.(errorMessage).Type)

	reply = srv.handleClientMessage(clientRequest{Type: "set_mode", Mode: "ultraviolet"})
	assert.Equal(t, "error", reply.(errorMessage).Type)

	reply = srv.handleClientMessage(clientRequest{Type: "capture"})
	assert.Equal(t, errCaptureUnavailable.Error(), reply.(types.CaptureMessage).Error)

	reply = srv.handleClientMessage(clientRequest{Type: "snapshot_request"})
	assert.Equal(t, "status", reply.(map[string]any)["type"])

	reply = srv.handleClientMessage(clientRequest{Type: "dance"})
	assert.Equal(t, "error", reply.(errorMessage).Type)
}

func TestWebsocketSession(t *testing.T) {
	state := session.New(colorblind.Settings{})
	srv := newTestServer(Options{Session: state})
	handler, err := srv.Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "config", first["type"])
	assert.Equal(t, state.ID(), first["session_id"])

	var settings types.SettingsMessage
	require.NoError(t, conn.ReadJSON(&settings))
	assert.Equal(t, "none", settings.Mode)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "set_mode", "mode": "protanopia"}))
	require.NoError(t, conn.ReadJSON(&settings))
	assert.Equal(t, "protanopia", settings.Mode)
	assert.Equal(t, colorblind.Protanopia, state.Snapshot().Mode)
}

func TestIndexServed(t *testing.T) {
	handler, err := newTestServer(Options{}).Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Apply Correction")
}

func TestEncodePreviewDownscales(t *testing.T) {
	frame := types.NewFrame(100, 50)
	data, err := EncodePreview(frame, 40, 80)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())

	data, err = EncodePreview(frame, 200, 80)
	require.NoError(t, err)
	img, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestFrameMessageBytes(t *testing.T) {
	out := frameMessageBytes(types.FrameMessage{Seq: 258, JPEG: []byte{0xff, 0xd8}})
	require.Len(t, out, 10)
	assert.Equal(t, uint64(258), binary.BigEndian.Uint64(out))
	assert.Equal(t, []byte{0xff, 0xd8}, out[8:])
}
