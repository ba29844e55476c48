// internal/config/config.go
package config

// Config is the application configuration. Only cmd/hestia reads it; the
// driver packages receive plain values.
type Config struct {
	Serial   SerialConfig  `yaml:"serial"`
	Password []uint16      `yaml:"password"`
	Queue    QueueConfig   `yaml:"queue"`
	History  HistoryConfig `yaml:"history"`
	Worker   WorkerConfig  `yaml:"worker"`
	Uplink   UplinkConfig  `yaml:"uplink"`
	Poll     PollConfig    `yaml:"poll"`
	Capture  CaptureConfig `yaml:"capture"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	LoRa     LoRaConfig    `yaml:"lora"`
	Log      LogConfig     `yaml:"log"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device    string `yaml:"device"`
	SlaveID   uint8  `yaml:"slave_id"`
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // N, E or O
	StopBits  int    `yaml:"stop_bits"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- FILES ----

type QueueConfig struct {
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ---- LOOPS ----

type WorkerConfig struct {
	IdleMs        int `yaml:"idle_ms"`
	RetryMs       int `yaml:"retry_ms"`
	StopTimeoutMs int `yaml:"stop_timeout_ms"`
}

type UplinkConfig struct {
	MaxPolls       int `yaml:"max_polls"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- PRODUCERS ----

type CaptureConfig struct {
	OnDownlink bool `yaml:"on_downlink"`
}

// ---- MQTT (optional) ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables MQTT
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
}

// ---- LORA ----

type LoRaConfig struct {
	Frequency   string             `yaml:"frequency"`
	SF          string             `yaml:"sf"`
	ChannelPlan string             `yaml:"ch_plan"`
	Devices     []LoRaDeviceConfig `yaml:"devices"`
}

type LoRaDeviceConfig struct {
	Idx    int    `yaml:"idx"`
	ID     string `yaml:"id"`
	NSKey  string `yaml:"ns_key"`
	AppKey string `yaml:"app_key"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}
