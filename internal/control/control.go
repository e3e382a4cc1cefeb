// Package control exposes the session over MQTT: JSON commands arrive on
// the control topic and every command is answered on the response topic.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
)

// Command is a control plane request.
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response answers exactly one Command.
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

type Callbacks struct {
	OnSetMode       func(colorblind.Mode) error
	OnSetCorrection func(bool) error
	OnCapture       func() ([]string, error)
	OnGetStatus     func() map[string]any
}

// client is the part of mqtt.Client the handler uses.
type client interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

type Handler struct {
	cfg       config.MQTTConfig
	client    client
	commands  chan Command
	callbacks Callbacks
}

// Connect dials the broker with automatic reconnection enabled.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("control: mqtt connected", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("control: mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return c, nil
}

func NewHandler(cfg config.MQTTConfig, c mqtt.Client, callbacks Callbacks) *Handler {
	return newHandler(cfg, c, callbacks)
}

func newHandler(cfg config.MQTTConfig, c client, callbacks Callbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    c,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is done.
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("control: subscribing", "topic", h.cfg.ControlTopic, "qos", h.cfg.QoS)

	token := h.client.Subscribe(h.cfg.ControlTopic, h.cfg.QoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)
	return nil
}

func (h *Handler) Stop() {
	if h.client != nil && h.client.IsConnected() {
		h.client.Unsubscribe(h.cfg.ControlTopic).WaitTimeout(2 * time.Second)
	}
	slog.Info("control: handler stopped")
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Warn("control: failed to parse command", "error", err)
		h.sendResponse(Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
		h.sendResponse(Response{CommandAck: cmd.Command, Status: "error", Error: "command queue full"})
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	fail := func(msg string) Response {
		resp.Status = "error"
		resp.Error = msg
		return resp
	}

	switch cmd.Command {
	case "set_mode":
		if h.callbacks.OnSetMode == nil {
			return fail("set_mode not implemented")
		}
		name, ok := cmd.Params["mode"].(string)
		if !ok {
			return fail("missing or invalid 'mode' parameter (expected string)")
		}
		mode, err := colorblind.ParseMode(name)
		if err != nil {
			return fail(err.Error())
		}
		if err := h.callbacks.OnSetMode(mode); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]any{"mode": mode.String(), "label": mode.Label()}

	case "set_correction":
		if h.callbacks.OnSetCorrection == nil {
			return fail("set_correction not implemented")
		}
		enabled, ok := cmd.Params["enabled"].(bool)
		if !ok {
			return fail("missing or invalid 'enabled' parameter (expected bool)")
		}
		if err := h.callbacks.OnSetCorrection(enabled); err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]any{"correction": enabled}

	case "capture":
		if h.callbacks.OnCapture == nil {
			return fail("capture not implemented")
		}
		files, err := h.callbacks.OnCapture()
		if err != nil {
			return fail(err.Error())
		}
		resp.Status = "success"
		resp.Data = map[string]any{"files": files}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return fail("get_status not implemented")
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	default:
		return fail(fmt.Sprintf("unknown command %q", cmd.Command))
	}
	return resp
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.ResponseTopic, h.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}
	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
