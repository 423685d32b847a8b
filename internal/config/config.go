// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/bpnmea/buspirate"
)

// Config defines the global configuration structure
type Config struct {
	Device DeviceConfig `mapstructure:"device"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	FixLog FixLogConfig `mapstructure:"fixlog"`
	Map    MapConfig    `mapstructure:"map"`
	Live   LiveConfig   `mapstructure:"live"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Log    LogConfig    `mapstructure:"log"`
}

// LogConfig defines diagnostic logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	File       string `mapstructure:"file"`        // Log file path, empty or "-" for stderr
	MaxSize    int    `mapstructure:"max_size"`    // megabytes
	MaxBackups int    `mapstructure:"max_backups"` // rotated files to keep
	MaxAge     int    `mapstructure:"max_age"`     // days
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig selects the link to the adapter.
type DeviceConfig struct {
	Type    string        `mapstructure:"type"`    // "serial", "tcp", "capture"
	Serial  SerialConfig  `mapstructure:"serial"`  // Used if Type is "serial"
	Tcp     TcpConfig     `mapstructure:"tcp"`     // Used if Type is "tcp"
	Capture CaptureConfig `mapstructure:"capture"` // Used if Type is "capture"
}

// SerialConfig defines the host side serial link to the adapter.
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Read timeout
}

// TcpConfig defines a serial-over-TCP link (e.g. ser2net raw port).
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "192.168.1.100:3001"
	Timeout time.Duration `mapstructure:"timeout"` // Read timeout
}

// CaptureConfig defines a recorded byte stream replayed behind an emulated
// adapter.
type CaptureConfig struct {
	Path      string `mapstructure:"path"`
	ChunkSize int    `mapstructure:"chunk_size"` // bytes served per read
}

// BridgeConfig defines the adapter handshake and UART settings.
type BridgeConfig struct {
	SyncBytes       int           `mapstructure:"sync_bytes"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	UARTBaud        int           `mapstructure:"uart_baud"` // baud rate of the GPS receiver
	Output3V3       bool          `mapstructure:"output_3v3"`
	Power           bool          `mapstructure:"power"`
	Pullups         bool          `mapstructure:"pullups"`
}

// UARTSettings converts the bridge section into adapter settings.
func (b BridgeConfig) UARTSettings() buspirate.UARTSettings {
	return buspirate.UARTSettings{
		Baud:      b.UARTBaud,
		Output3V3: b.Output3V3,
		Power:     b.Power,
		Pullups:   b.Pullups,
	}
}

// FixLogConfig defines the append-only fix log.
type FixLogConfig struct {
	Path string `mapstructure:"path"` // empty: logs/<start time>
}

// BBoxConfig is the geographic extent of the map.
type BBoxConfig struct {
	LonMin float64 `mapstructure:"lon_min"`
	LonMax float64 `mapstructure:"lon_max"`
	LatMin float64 `mapstructure:"lat_min"`
	LatMax float64 `mapstructure:"lat_max"`
}

// MapConfig defines the rendered position map.
type MapConfig struct {
	BBox       BBoxConfig `mapstructure:"bbox"`
	Background string     `mapstructure:"background"` // PNG drawn under the points
	Output     string     `mapstructure:"output"`     // PNG rewritten on every update, empty disables
	Width      int        `mapstructure:"width"`
	Height     int        `mapstructure:"height"`
}

// LiveConfig defines the websocket live map feed.
type LiveConfig struct {
	Address string `mapstructure:"address"` // e.g. ":8080", empty disables
}

// MQTTConfig defines the MQTT fix publisher.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"` // e.g. "tcp://localhost:1883", empty disables
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"type":      "device.type",
	"device":    "device.serial.device",
	"baud_rate": "device.serial.baud_rate",
	"address":   "device.tcp.address",
	"capture":   "device.capture.path",
	"uart_baud": "bridge.uart_baud",
	"fixlog":    "fixlog.path",
	"map":       "map.output",
	"live":      "live.address",
	"log_level": "log.level",
	"log_file":  "log.file",
}

// LoadConfig loads configuration from file, then applies command line
// overrides from flags (which may be nil).
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/bpnmea/")
		v.AddConfigPath("$HOME/.bpnmea")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Without an explicit file every setting may come from defaults and flags.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flags != nil {
		if f := flags.Lookup("bbox"); f != nil && f.Changed {
			box, err := flags.GetFloat64Slice("bbox")
			if err != nil {
				return nil, fmt.Errorf("invalid bbox flag: %w", err)
			}
			if len(box) != 4 {
				return nil, fmt.Errorf("bbox needs lon_min,lon_max,lat_min,lat_max, got %d values", len(box))
			}
			config.Map.BBox = BBoxConfig{LonMin: box[0], LonMax: box[1], LatMin: box[2], LatMax: box[3]}
		}
	}

	// Validate / Fixups
	fixupSerial(&config.Device.Serial)
	config.Device.Type = strings.ToLower(strings.TrimSpace(config.Device.Type))
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.type", "serial")
	v.SetDefault("device.serial.device", "/dev/ttyUSB0")
	v.SetDefault("device.serial.baud_rate", 115200)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.parity", "N")
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.timeout", 100*time.Millisecond)
	v.SetDefault("device.tcp.timeout", 100*time.Millisecond)
	v.SetDefault("device.capture.chunk_size", 64)

	v.SetDefault("bridge.sync_bytes", buspirate.SyncBytes)
	v.SetDefault("bridge.response_timeout", buspirate.ResponseTimeout)
	v.SetDefault("bridge.uart_baud", 9600)
	v.SetDefault("bridge.output_3v3", true)
	v.SetDefault("bridge.power", true)

	v.SetDefault("map.bbox.lon_min", 2.29367)
	v.SetDefault("map.bbox.lon_max", 2.29798)
	v.SetDefault("map.bbox.lat_min", 48.87460)
	v.SetDefault("map.bbox.lat_max", 48.87184)
	v.SetDefault("map.output", "gps_map.png")
	v.SetDefault("map.width", 800)
	v.SetDefault("map.height", 700)

	v.SetDefault("mqtt.client_id", "bpnmea")
	v.SetDefault("mqtt.topic", "bpnmea/fix")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 100 * time.Millisecond
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Device.Type {
	case "serial":
		if c.Device.Serial.Device == "" {
			return fmt.Errorf("device.serial.device is required")
		}
		if c.Device.Serial.BaudRate <= 0 {
			return fmt.Errorf("device.serial.baud_rate must be positive, got %d", c.Device.Serial.BaudRate)
		}
	case "tcp":
		if c.Device.Tcp.Address == "" {
			return fmt.Errorf("device.tcp.address is required")
		}
	case "capture":
		if c.Device.Capture.Path == "" {
			return fmt.Errorf("device.capture.path is required")
		}
	default:
		return fmt.Errorf("unknown device type %q", c.Device.Type)
	}

	if c.Bridge.SyncBytes <= 0 {
		return fmt.Errorf("bridge.sync_bytes must be positive, got %d", c.Bridge.SyncBytes)
	}
	if _, err := buspirate.SpeedCode(c.Bridge.UARTBaud); err != nil {
		return fmt.Errorf("bridge.uart_baud: %w", err)
	}

	b := c.Map.BBox
	if b.LonMin == b.LonMax || b.LatMin == b.LatMax {
		return fmt.Errorf("map.bbox must have a non-zero extent: %+v", b)
	}
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		return fmt.Errorf("map size must be positive, got %dx%d", c.Map.Width, c.Map.Height)
	}
	return nil
}
