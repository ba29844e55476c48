// cmd/hestia/run.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/capture"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/history"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/worker"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/writer"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the driver until interrupted",
		Long: `Open the dongle, authenticate, and run the downlink monitor, telemetry
poller and upload worker until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	log := a.log

	q, err := a.openQueue()
	if err != nil {
		return err
	}
	hist, err := a.openHistory()
	if err != nil {
		return err
	}

	// --------------------
	// Optional MQTT
	// --------------------

	var (
		mqttWriter *writer.MQTTWriter
		health     *writer.HealthWriter
	)
	if m := a.cfg.MQTT; m.Broker != "" {
		cli, err := writer.NewMQTTClient(writer.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
		}, log.With("mqtt"))
		if err != nil {
			return err
		}
		if err := cli.Connect(); err != nil {
			log.Error("mqtt connect: %v", err)
		}
		defer cli.Close()

		mqttWriter = writer.NewMQTTWriter(cli, m.TopicPrefix, m.QoS)
		health = writer.NewHealthWriter(cli, m.TopicPrefix, m.ClientID, m.QoS)
	}

	// --------------------
	// Session + downlink handling
	// --------------------

	// The handler can fire as soon as the password is accepted, before
	// openSession returns.
	var live atomic.Pointer[session.Session]
	dl := capture.DownlinkConfig{
		History: hist,
		Trigger: a.cfg.Capture.OnDownlink,
		Source: capture.TelemetryFunc(func() (session.Telemetry, error) {
			s := live.Load()
			if s == nil {
				return session.Telemetry{}, errors.New("session not ready")
			}
			return s.ReadTelemetry()
		}),
		Queue: q,
	}
	if mqttWriter != nil {
		dl.Publisher = mqttWriter
	}
	sess, err := a.openSession(capture.NewDownlinkHandler(dl, log.With("capture")))
	if err != nil {
		return err
	}
	defer sess.Stop()
	live.Store(sess)
	log.Info("dongle ready (firmware %s, mode %d)", sess.Firmware(), sess.ServiceMode())

	// --------------------
	// Upload worker
	// --------------------

	w := worker.New(sess, q, hist, a.workerTiming(), log.With("worker"))
	if mqttWriter != nil {
		w.OnAttempt = func(at worker.Attempt) {
			rec := history.UplinkRecord{
				Success:  at.Err == nil,
				Type:     at.Entry.Label,
				Payload:  at.Entry.Payload,
				Response: at.Result.Response,
			}
			if at.Err != nil {
				rec.Error = at.Err.Error()
			}
			if err := mqttWriter.PublishUplink(rec); err != nil {
				log.Error("publish uplink: %v", err)
			}
		}
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.Error("%v", err)
		}
	}()

	// --------------------
	// Telemetry poller -> writers
	// --------------------

	p, err := poller.Build(a.cfg, sess)
	if err != nil {
		return err
	}

	writers := []writer.Writer{writer.NewHistoryWriter(hist)}
	if mqttWriter != nil {
		writers = append(writers, mqttWriter)
	}
	out := writer.Multi(writers...)

	snaps := make(chan poller.Snapshot)
	go p.Run(ctx, snaps)

	if health != nil {
		go health.Run(ctx, func(err error) { log.Error("health publish: %v", err) })
	}

	log.Info("running (poll every %v)", time.Duration(a.cfg.Poll.IntervalMs)*time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil

		case snap := <-snaps:
			if err := snap.Err(); err != nil {
				log.Verbose("poll: %d group(s) failed, first: %v", len(snap.Errs), err)
			}
			if err := out.Write(snap); err != nil {
				log.Error("writer: %v", err)
			}
			if health != nil {
				if err := health.Write(snap); err != nil {
					log.Error("health: %v", err)
				}
			}
		}
	}
}
