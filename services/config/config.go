// Package config loads node configuration: embedded defaults, an optional
// YAML file, then environment overrides (optionally from a .env file).
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"floraseven/errcode"
)

// Node kinds.
const (
	NodeHub    = "hub"
	NodeSensor = "sensor"
)

// Environment overrides.
const (
	EnvBrokerURL     = "FLORA_BROKER_URL"
	EnvClientID      = "FLORA_CLIENT_ID"
	EnvMQTTUser      = "FLORA_MQTT_USERNAME"
	EnvMQTTPassword  = "FLORA_MQTT_PASSWORD"
	EnvUploadURL     = "FLORA_UPLOAD_URL"
	EnvI2CDevice     = "FLORA_I2C_DEV"
	EnvLogLevel      = "FLORA_LOG_LEVEL"
	EnvMetricsListen = "FLORA_METRICS_LISTEN"
)

// EmbeddedConfigLookup allows overriding how defaults are resolved.
var EmbeddedConfigLookup = func(node string) ([]byte, bool) {
	b, ok := embeddedConfigs[node]
	return b, ok
}

type Config struct {
	Node    string        `yaml:"node"`
	Log     LogConfig     `yaml:"log"`
	Broker  BrokerConfig  `yaml:"broker"`
	Topics  TopicsConfig  `yaml:"topics"`
	Metrics MetricsConfig `yaml:"metrics"`
	Hub     HubConfig     `yaml:"hub"`
	Sensor  SensorConfig  `yaml:"sensor"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

type BrokerConfig struct {
	URL            string        `yaml:"url"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

type TopicsConfig struct {
	Prefix string `yaml:"prefix"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

type HubConfig struct {
	I2CDevice         string        `yaml:"i2c_device"`
	PumpAddress       uint16        `yaml:"pump_address"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	Camera            CameraConfig  `yaml:"camera"`
	Upload            UploadConfig  `yaml:"upload"`
}

type CameraConfig struct {
	StillPath     string `yaml:"still_path"`
	Buffers       int    `yaml:"buffers"`
	MaxFrameBytes int    `yaml:"max_frame_bytes"`
}

type UploadConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SensorConfig struct {
	NodeID    string        `yaml:"node_id"`
	Interval  time.Duration `yaml:"interval"`
	I2CDevice string        `yaml:"i2c_device"`
	W1Path    string        `yaml:"w1_path"`
	ADCDir    string        `yaml:"adc_dir"`
	Channels  ChannelConfig `yaml:"channels"`
	Samples   int           `yaml:"samples"`
	PublishEC bool          `yaml:"publish_ec"`
	EC        ECConfig      `yaml:"ec"`
}

type ChannelConfig struct {
	Moisture int `yaml:"moisture"`
	UV       int `yaml:"uv"`
	EC       int `yaml:"ec"`
}

type ECConfig struct {
	ZeroVolts  float64 `yaml:"zero_volts"`
	KnownVolts float64 `yaml:"known_volts"`
	KnownMsCm  float64 `yaml:"known_ms_cm"`
	TempCoeff  float64 `yaml:"temp_coeff"`
}

// ---- Topics ----

func (t TopicsConfig) PumpCommand() string    { return t.Prefix + "/command/hub/pump" }
func (t TopicsConfig) CaptureCommand() string { return t.Prefix + "/command/hub/captureImage" }
func (t TopicsConfig) HubStatus() string      { return t.Prefix + "/hub/status" }
func (t TopicsConfig) ImageStatus() string    { return t.Prefix + "/hub/cam/image_status" }
func (t TopicsConfig) PlantData(nodeID string) string {
	return t.Prefix + "/plant/" + nodeID + "/data"
}

// ---- Loading ----

// Options selects the sources for Load. Empty paths are skipped.
type Options struct {
	Node    string
	File    string
	EnvFile string
	// LogLevel, when set, wins over every other source.
	LogLevel string
}

// Load builds and validates the configuration for one node.
func Load(o Options) (*Config, error) {
	const op = "config.load"
	raw, ok := EmbeddedConfigLookup(o.Node)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: op, Msg: "unknown node " + strconv.Quote(o.Node)}
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, op+" embedded", err)
	}

	if o.File != "" {
		b, err := os.ReadFile(o.File)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidConfig, op, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, errcode.Wrap(errcode.InvalidConfig, op+" "+o.File, err)
		}
	}

	env, err := environment(o.EnvFile)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, op, err)
	}
	cfg.applyEnv(env)
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	cfg.Node = o.Node

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// environment merges the .env file (if any) with the process environment;
// the process wins.
func environment(envFile string) (map[string]string, error) {
	vals := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil {
			return nil, err
		}
		vals = m
	}
	for _, k := range []string{
		EnvBrokerURL, EnvClientID, EnvMQTTUser, EnvMQTTPassword,
		EnvUploadURL, EnvI2CDevice, EnvLogLevel, EnvMetricsListen,
	} {
		if v, ok := os.LookupEnv(k); ok {
			vals[k] = v
		}
	}
	return vals, nil
}

func (c *Config) applyEnv(env map[string]string) {
	set := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	set(EnvBrokerURL, &c.Broker.URL)
	set(EnvClientID, &c.Broker.ClientID)
	set(EnvMQTTUser, &c.Broker.Username)
	set(EnvMQTTPassword, &c.Broker.Password)
	set(EnvUploadURL, &c.Hub.Upload.URL)
	set(EnvI2CDevice, &c.Hub.I2CDevice)
	set(EnvI2CDevice, &c.Sensor.I2CDevice)
	set(EnvLogLevel, &c.Log.Level)
	set(EnvMetricsListen, &c.Metrics.Listen)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(msg string) {
		errs = append(errs, &errcode.E{C: errcode.InvalidConfig, Op: "config.validate", Msg: msg})
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level must be debug, info, warn or error")
	}
	if c.Broker.URL == "" {
		bad("broker.url is required")
	}
	if c.Broker.ClientID == "" {
		bad("broker.client_id is required")
	}
	if c.Broker.QoS > 2 {
		bad("broker.qos must be 0, 1 or 2")
	}
	if c.Broker.Retry.MaxAttempts < 1 {
		bad("broker.retry.max_attempts must be at least 1")
	}
	if c.Broker.Retry.Delay < 0 {
		bad("broker.retry.delay must not be negative")
	}
	if c.Topics.Prefix == "" {
		bad("topics.prefix is required")
	}

	switch c.Node {
	case NodeHub:
		h := c.Hub
		if h.I2CDevice == "" {
			bad("hub.i2c_device is required")
		}
		if h.PumpAddress < 0x08 || h.PumpAddress > 0x77 {
			bad("hub.pump_address must be a 7-bit address in 0x08..0x77")
		}
		if h.StatusInterval <= 0 || h.ReconnectInterval <= 0 {
			bad("hub intervals must be positive")
		}
		if h.Upload.URL == "" {
			bad("hub.upload.url is required")
		}
		if h.Camera.StillPath == "" {
			bad("hub.camera.still_path is required")
		}
	case NodeSensor:
		s := c.Sensor
		if s.NodeID == "" {
			bad("sensor.node_id is required")
		}
		if s.Interval <= 0 {
			bad("sensor.interval must be positive")
		}
		if s.Samples < 1 {
			bad("sensor.samples must be at least 1")
		}
	default:
		bad("node must be hub or sensor")
	}
	return errors.Join(errs...)
}
