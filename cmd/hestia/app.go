// cmd/hestia/app.go
package main

import (
	"fmt"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/config"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/downlink"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/history"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/queue"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/uplink"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/worker"
)

// app is the loaded config plus the process logger.
type app struct {
	cfg *config.Config
	log *logging.Logger
}

func loadApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log, err := logging.NewLogger(logging.ParseLevel(level), cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) Close() {
	a.log.Close()
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (a *app) sessionConfig(onDownlink downlink.Handler) session.Config {
	s := a.cfg.Serial
	return session.Config{
		Serial: register.Config{
			Device:   s.Device,
			SlaveID:  s.SlaveID,
			BaudRate: s.BaudRate,
			DataBits: s.DataBits,
			Parity:   s.Parity,
			StopBits: s.StopBits,
			Timeout:  ms(s.TimeoutMs),
		},
		Password: a.cfg.PasswordWords(),
		Uplink: uplink.Timing{
			PollInterval: ms(a.cfg.Uplink.PollIntervalMs),
			MaxPolls:     a.cfg.Uplink.MaxPolls,
		},
		OnDownlink: onDownlink,
	}
}

// openSession opens the link and authenticates. A rejected password is an
// error: nothing useful can be done without it.
func (a *app) openSession(onDownlink downlink.Handler) (*session.Session, error) {
	return a.authenticate(a.sessionConfig(onDownlink))
}

func (a *app) authenticate(cfg session.Config) (*session.Session, error) {
	s, err := session.Open(cfg, a.log.With("session"))
	if err != nil {
		return nil, err
	}
	if err := s.SetPassword(a.cfg.PasswordWords()); err != nil {
		s.Stop()
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return s, nil
}

// openOneShot opens a session for a single command. The downlink monitor
// starts paused so it never consumes downlinks nobody records.
func (a *app) openOneShot() (*session.Session, error) {
	cfg := a.sessionConfig(nil)
	cfg.StartPaused = true
	return a.authenticate(cfg)
}

func (a *app) openQueue() (*queue.Store, error) {
	return queue.Open(a.cfg.Queue.Path, a.log.With("queue"))
}

func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.cfg.History.Path)
}

func (a *app) workerTiming() worker.Timing {
	w := a.cfg.Worker
	return worker.Timing{
		Idle:        ms(w.IdleMs),
		Retry:       ms(w.RetryMs),
		StopTimeout: ms(w.StopTimeoutMs),
	}
}
