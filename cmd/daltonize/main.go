package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"daltonize-go/internal/colorblind"
	"daltonize-go/internal/config"
	"daltonize-go/internal/control"
	"daltonize-go/internal/ingest"
	"daltonize-go/internal/output"
	"daltonize-go/internal/processing"
	"daltonize-go/internal/server"
	"daltonize-go/internal/session"
	"daltonize-go/internal/types"
)

type metrics struct {
	framesIn        atomic.Uint64
	framesProcessed atomic.Uint64
	framesStale     atomic.Uint64
	metaMessages    atomic.Uint64
	mirrorErrors    atomic.Uint64
	processNanos    atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	decoded, decodeNanos := ingest.DecodeTiming()
	return map[string]any{
		"frames_in_total":        m.framesIn.Load(),
		"frames_processed_total": m.framesProcessed.Load(),
		"frames_stale_total":     m.framesStale.Load(),
		"meta_messages_total":    m.metaMessages.Load(),
		"mirror_errors_total":    m.mirrorErrors.Load(),
		"process_nanos_total":    m.processNanos.Load(),
		"decode_total":           decoded,
		"decode_nanos_total":     decodeNanos,
		"decode_failures_total":  ingest.DecodeFailures(),
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("daltonize: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	configPath := flag.String("config", "", "YAML or TOML config file; watched for changes")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port for the web UI")
	flag.StringVar(&cfg.Source, "source", cfg.Source, "Frame source: simulator, camera or zmq")
	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "ZMQ endpoint for the zmq source")
	flag.StringVar(&cfg.Codec, "codec", cfg.Codec, "Ingest message codec: cbor or msgpack")
	flag.StringVar(&cfg.Device, "device", cfg.Device, "Video device for the camera source")
	flag.IntVar(&cfg.Width, "width", cfg.Width, "Frame width")
	flag.IntVar(&cfg.Height, "height", cfg.Height, "Frame height")
	flag.Float64Var(&cfg.FPS, "fps", cfg.FPS, "Capture rate (frames/sec)")
	flag.BoolVar(&cfg.Mirror, "mirror", cfg.Mirror, "Flip frames horizontally")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of processing workers")
	flag.IntVar(&cfg.Parallelism, "parallelism", cfg.Parallelism, "Row shards per frame (0 = GOMAXPROCS)")
	flag.Float64Var(&cfg.PreviewFPS, "preview-fps", cfg.PreviewFPS, "Websocket preview rate (frames/sec)")
	flag.IntVar(&cfg.PreviewWidth, "preview-width", cfg.PreviewWidth, "Maximum preview width in pixels")
	flag.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality for previews and captures")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for captured images")
	flag.BoolVar(&cfg.RawLogEnabled, "raw-log", cfg.RawLogEnabled, "Write raw ingest messages to disk")
	flag.StringVar(&cfg.RawLogDir, "raw-log-dir", cfg.RawLogDir, "Directory for raw ingest logs")
	flag.IntVar(&cfg.IngestLogEvery, "ingest-log-every", cfg.IngestLogEvery, "Log every Nth ingest error")
	flag.BoolVar(&cfg.IngestFallback, "ingest-fallback", cfg.IngestFallback, "Fall back to the simulator when the source fails")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	flag.TextVar(&cfg.Session.Mode, "mode", cfg.Session.Mode, "Initial mode: none, protanopia, deuteranopia or tritanopia")
	flag.BoolVar(&cfg.Session.Correction, "correction", cfg.Session.Correction, "Start with correction enabled")
	flag.StringVar(&cfg.MQTT.Broker, "mqtt-broker", cfg.MQTT.Broker, "MQTT broker URL; enables the control plane")
	flag.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", cfg.MQTT.ClientID, "MQTT client id (default: session id)")
	flag.Parse()

	fileSession := config.Default().Session
	if *configPath != "" {
		// Flags given on the command line win over the file.
		explicit := map[string]string{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		fileCfg := config.Default()
		if err := config.Load(*configPath, &fileCfg); err != nil {
			return err
		}
		cfg = fileCfg
		fileSession = fileCfg.Session
		for name, value := range explicit {
			if err := flag.Set(name, value); err != nil {
				return fmt.Errorf("reapply -%s: %w", name, err)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := session.New(cfg.Session)
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "daltonize-" + state.ID()[:8]
	}
	slog.Info("daltonize: starting",
		"session", state.ID(),
		"source", cfg.Source,
		"status", colorblind.StatusText(state.Snapshot()),
		"port", cfg.Port,
	)

	captures, err := output.NewCaptureWriter(cfg.OutputDir, cfg.JPEGQuality)
	if err != nil {
		return err
	}

	var recorder *output.RawLogWriter
	if cfg.RawLogEnabled && cfg.Source == config.SourceZMQ {
		recorder, err = output.NewRawLogWriter(cfg.RawLogDir, "raw_"+cfg.Codec)
		if err != nil {
			return fmt.Errorf("failed to start raw log: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				slog.Warn("daltonize: raw log close failed", "error", err)
			}
		}()
		slog.Info("daltonize: recording raw messages", "path", recorder.Path())
	}

	var m metrics
	agg := processing.NewAggregator()
	startedAt := time.Now()
	uiMessages := make(chan any, 16)

	capture := func() ([]string, error) {
		result, ok := agg.Latest()
		if !ok {
			return nil, processing.ErrNoFrame
		}
		files, err := captures.Save(result)
		if err != nil {
			return files, err
		}
		slog.Info("daltonize: images saved", "files", files)
		return files, nil
	}
	status := func() map[string]any {
		saved, failed := captures.Stats()
		cur := state.Snapshot()
		payload := map[string]any{
			"session_id": state.ID(),
			"source":     cfg.Source,
			"mode":       cur.Mode.String(),
			"correction": cur.Correction,
			"uptime":     time.Since(startedAt).Round(time.Second).String(),
			"metrics":    m.snapshot(),
			"processing": agg.Snapshot(),
			"captures":   map[string]any{"saved_total": saved, "failed_total": failed},
		}
		if recorder != nil {
			payload["raw_log"] = map[string]any{"path": recorder.Path(), "records": recorder.Records()}
		}
		return payload
	}

	var rec ingest.RawRecorder
	if recorder != nil {
		rec = recorder
	}
	frames, err := openSource(ctx, cfg, rec, &m, uiMessages)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(ctx, cfg, server.Options{
			Session:  state,
			Status:   status,
			Capture:  capture,
			Latest:   agg.Latest,
			Messages: uiMessages,
		})
	})

	g.Go(func() error {
		runWorkers(ctx, cfg, frames, state, agg, &m)
		return nil
	})

	if *configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, *configPath, config.Default(), sessionReloader(fileSession, state.Set))
		})
	}

	if cfg.MQTT.Broker != "" {
		client, err := control.Connect(cfg.MQTT)
		if err != nil {
			slog.Warn("daltonize: mqtt control plane disabled", "error", err)
		} else {
			handler := control.NewHandler(cfg.MQTT, client, control.Callbacks{
				OnSetMode:       func(mode colorblind.Mode) error { state.SetMode(mode); return nil },
				OnSetCorrection: func(on bool) error { state.SetCorrection(on); return nil },
				OnCapture: func() ([]string, error) {
					files, err := capture()
					msg := types.CaptureMessage{Type: "capture", Files: files}
					if err != nil {
						msg.Error = err.Error()
					}
					select {
					case uiMessages <- msg:
					default:
					}
					return files, err
				},
				OnGetStatus: status,
			})
			if err := handler.Start(ctx); err != nil {
				slog.Warn("daltonize: mqtt control plane disabled", "error", err)
				client.Disconnect(250)
			} else {
				g.Go(func() error {
					<-ctx.Done()
					handler.Stop()
					client.Disconnect(250)
					return nil
				})
			}
		}
	}

	slog.Info("daltonize: web UI ready", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("daltonize: stopped", "frames", m.framesProcessed.Load())
	return nil
}

// sessionReloader applies the file's session section only when it differs
// from the last version read from the file, so edits to other keys keep
// whatever viewers or flags picked.
func sessionReloader(last colorblind.Settings, set func(colorblind.Settings)) func(config.AppConfig) {
	return func(next config.AppConfig) {
		if next.Session == last {
			return
		}
		last = next.Session
		set(next.Session)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
