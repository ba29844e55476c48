// internal/config/normalize.go
package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultSlaveID     = 1
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultParity      = "N"
	DefaultStopBits    = 1
	DefaultTimeoutMs   = 1000
	DefaultQueuePath   = "run/temp_data_queue.json"
	DefaultHistoryPath = "run/hestia_info.yaml"
	DefaultIdleMs      = 5000
	DefaultRetryMs     = 10000
	DefaultStopMs      = 15000
	DefaultMaxPolls    = 30
	DefaultUplinkMs    = 1000
	DefaultPollMs      = 5000
	DefaultTopicPrefix = "hestia"
	DefaultClientID    = "hestia"
	DefaultLogLevel    = "info"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	s := &cfg.Serial
	s.Device = strings.TrimSpace(s.Device)
	setDefault(&s.BaudRate, DefaultBaudRate)
	setDefault(&s.DataBits, DefaultDataBits)
	setDefault(&s.StopBits, DefaultStopBits)
	setDefault(&s.TimeoutMs, DefaultTimeoutMs)
	if s.SlaveID == 0 {
		s.SlaveID = DefaultSlaveID
	}
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = DefaultParity
	}

	// Factory password when omitted.
	if len(cfg.Password) == 0 {
		cfg.Password = []uint16{0, 0, 0, 0}
	}

	if cfg.Queue.Path == "" {
		cfg.Queue.Path = DefaultQueuePath
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}

	setDefault(&cfg.Worker.IdleMs, DefaultIdleMs)
	setDefault(&cfg.Worker.RetryMs, DefaultRetryMs)
	setDefault(&cfg.Worker.StopTimeoutMs, DefaultStopMs)
	setDefault(&cfg.Uplink.MaxPolls, DefaultMaxPolls)
	setDefault(&cfg.Uplink.PollIntervalMs, DefaultUplinkMs)
	setDefault(&cfg.Poll.IntervalMs, DefaultPollMs)

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = DefaultClientID
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultTopicPrefix
		}
		cfg.MQTT.TopicPrefix = strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// PasswordWords returns the password as the four register words.
func (c *Config) PasswordWords() [4]uint16 {
	var p [4]uint16
	copy(p[:], c.Password)
	return p
}
