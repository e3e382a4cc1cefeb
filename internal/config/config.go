package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"daltonize-go/internal/colorblind"
)

const (
	SourceSimulator = "simulator"
	SourceCamera    = "camera"
	SourceZMQ       = "zmq"
)

type AppConfig struct {
	Port           int                 `yaml:"port" toml:"port"`
	Source         string              `yaml:"source" toml:"source"`
	Endpoint       string              `yaml:"endpoint" toml:"endpoint"`
	Codec          string              `yaml:"codec" toml:"codec"`
	Device         string              `yaml:"device" toml:"device"`
	Width          int                 `yaml:"width" toml:"width"`
	Height         int                 `yaml:"height" toml:"height"`
	FPS            float64             `yaml:"fps" toml:"fps"`
	Mirror         bool                `yaml:"mirror" toml:"mirror"`
	Workers        int                 `yaml:"workers" toml:"workers"`
	Parallelism    int                 `yaml:"parallelism" toml:"parallelism"`
	PreviewFPS     float64             `yaml:"preview_fps" toml:"preview_fps"`
	PreviewWidth   int                 `yaml:"preview_width" toml:"preview_width"`
	JPEGQuality    int                 `yaml:"jpeg_quality" toml:"jpeg_quality"`
	OutputDir      string              `yaml:"output_dir" toml:"output_dir"`
	RawLogEnabled  bool                `yaml:"raw_log" toml:"raw_log"`
	RawLogDir      string              `yaml:"raw_log_dir" toml:"raw_log_dir"`
	IngestLogEvery int                 `yaml:"ingest_log_every" toml:"ingest_log_every"`
	IngestFallback bool                `yaml:"ingest_fallback" toml:"ingest_fallback"`
	LogLevel       string              `yaml:"log_level" toml:"log_level"`
	LogFormat      string              `yaml:"log_format" toml:"log_format"`
	Session        colorblind.Settings `yaml:"session" toml:"session"`
	MQTT           MQTTConfig          `yaml:"mqtt" toml:"mqtt"`
}

// MQTTConfig enables the MQTT control plane when Broker is set.
type MQTTConfig struct {
	Broker        string `yaml:"broker" toml:"broker"`
	ClientID      string `yaml:"client_id" toml:"client_id"`
	ControlTopic  string `yaml:"control_topic" toml:"control_topic"`
	ResponseTopic string `yaml:"response_topic" toml:"response_topic"`
	QoS           byte   `yaml:"qos" toml:"qos"`
}

func Default() AppConfig {
	return AppConfig{
		Port:           8888,
		Source:         SourceSimulator,
		Endpoint:       "tcp://localhost:31001",
		Codec:          "cbor",
		Device:         "/dev/video0",
		Width:          640,
		Height:         480,
		FPS:            30,
		Mirror:         true,
		Workers:        2,
		Parallelism:    0,
		PreviewFPS:     15,
		PreviewWidth:   640,
		JPEGQuality:    85,
		OutputDir:      "captures",
		RawLogDir:      "rawlog",
		IngestLogEvery: 100,
		IngestFallback: true,
		LogLevel:       "info",
		LogFormat:      "text",
		MQTT: MQTTConfig{
			ControlTopic:  "daltonize/control",
			ResponseTopic: "daltonize/response",
			QoS:           1,
		},
	}
}

// Load overlays the file at path onto cfg. The format is chosen by
// extension: .yaml, .yml or .toml. Unknown keys are rejected.
func Load(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(cfg); errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c AppConfig) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Source {
	case SourceSimulator, SourceCamera, SourceZMQ:
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	switch c.Codec {
	case "cbor", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if c.Width < 1 || c.Height < 1 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %v", c.FPS))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d out of range 1-100", c.JPEGQuality))
	}
	if !c.Session.Mode.Valid() {
		errs = append(errs, fmt.Errorf("invalid session mode %v", c.Session.Mode))
	}
	return errors.Join(errs...)
}
