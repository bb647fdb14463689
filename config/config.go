// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package config implements the configuration for a BitTorrent tracker
package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// ErrMissingRequiredParam is used by drivers to indicate that a DriverConfig
// field they require, such as the DSN, is empty.
var ErrMissingRequiredParam = errors.New("A parameter that was required by a driver is not present")

// Tracker modes. A listed mode only admits whitelisted info hashes; a private
// mode only admits announces carrying a valid key.
const (
	ModePublic        = "public"
	ModeListed        = "listed"
	ModePrivate       = "private"
	ModePrivateListed = "private-listed"
)

// Duration wraps a time.Duration and adds JSON marshalling.
type Duration struct{ time.Duration }

// MarshalJSON transforms a duration into JSON.
func (d *Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON transform JSON into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	err := json.Unmarshal(b, &str)
	d.Duration, err = time.ParseDuration(str)
	return err
}

// DriverConfig is the configuration used to connect to a backend.Driver.
type DriverConfig struct {
	Name string `json:"driver"`
	DSN  string `json:"dsn,omitempty"`
}

// NetConfig is the configuration used to tune networking behaviour.
type NetConfig struct {
	OnReverseProxy bool   `json:"onReverseProxy"`
	RealIPHeader   string `json:"realIPHeader"`
}

// StatsConfig is the configuration used to record runtime statistics.
type StatsConfig struct {
	BufferSize        int      `json:"statsBufferSize"`
	IncludeMem        bool     `json:"includeMemStats"`
	VerboseMem        bool     `json:"verboseMemStats"`
	MemUpdateInterval Duration `json:"memStatsInterval"`
}

// TrackerConfig is the configuration for tracker functionality.
type TrackerConfig struct {
	Mode               string   `json:"mode"`
	Announce           Duration `json:"announce"`
	MinAnnounce        Duration `json:"minAnnounce"`
	PeerTimeout        Duration `json:"peerTimeout"`
	ReapInterval       Duration `json:"reapInterval"`
	PurgeEmptyTorrents bool     `json:"purgeEmptyTorrents"`
	NumWantFallback    int      `json:"defaultNumWant"`
	NumWantMax         int      `json:"maxNumWant"`
	TorrentMapShards   int      `json:"torrentMapShards"`

	NetConfig
}

// Private reports whether announces must carry a valid key.
func (cfg *TrackerConfig) Private() bool {
	return cfg.Mode == ModePrivate || cfg.Mode == ModePrivateListed
}

// Listed reports whether announces are restricted to whitelisted info hashes.
func (cfg *TrackerConfig) Listed() bool {
	return cfg.Mode == ModeListed || cfg.Mode == ModePrivateListed
}

// APIConfig is the configuration for the HTTP JSON API server.
type APIConfig struct {
	ListenAddr     string            `json:"apiListenAddr"`
	RequestTimeout Duration          `json:"apiRequestTimeout"`
	ReadTimeout    Duration          `json:"apiReadTimeout"`
	WriteTimeout   Duration          `json:"apiWriteTimeout"`
	ListenLimit    int               `json:"apiListenLimit"`
	AdminTokens    map[string]string `json:"adminTokens"`
}

// HTTPConfig is the configuration for the HTTP protocol.
type HTTPConfig struct {
	ListenAddr     string   `json:"httpListenAddr"`
	RequestTimeout Duration `json:"httpRequestTimeout"`
	ReadTimeout    Duration `json:"httpReadTimeout"`
	WriteTimeout   Duration `json:"httpWriteTimeout"`
	ListenLimit    int      `json:"httpListenLimit"`
}

// UDPConfig is the configuration for the UDP protocol.
type UDPConfig struct {
	ListenAddr     string `json:"udpListenAddr"`
	ReadBufferSize int    `json:"udpReadBufferSize"`
}

// Config is the global configuration for an instance of the tracker.
type Config struct {
	TrackerConfig
	APIConfig
	HTTPConfig
	UDPConfig
	DriverConfig
	StatsConfig
}

// DefaultConfig is a configuration that can be used as a fallback value.
var DefaultConfig = Config{
	TrackerConfig: TrackerConfig{
		Mode:               ModePublic,
		Announce:           Duration{30 * time.Minute},
		MinAnnounce:        Duration{15 * time.Minute},
		PeerTimeout:        Duration{45 * time.Minute},
		ReapInterval:       Duration{60 * time.Second},
		PurgeEmptyTorrents: false,
		NumWantFallback:    74,
		NumWantMax:         74,
		TorrentMapShards:   64,

		NetConfig: NetConfig{
			OnReverseProxy: false,
			RealIPHeader:   "X-Forwarded-For",
		},
	},

	APIConfig: APIConfig{
		ListenAddr:     "localhost:6880",
		RequestTimeout: Duration{10 * time.Second},
		ReadTimeout:    Duration{10 * time.Second},
		WriteTimeout:   Duration{10 * time.Second},
		AdminTokens: map[string]string{
			"admin": "MyAccessToken",
		},
	},

	HTTPConfig: HTTPConfig{
		ListenAddr:     "localhost:6881",
		RequestTimeout: Duration{10 * time.Second},
		ReadTimeout:    Duration{10 * time.Second},
		WriteTimeout:   Duration{10 * time.Second},
	},

	UDPConfig: UDPConfig{
		ListenAddr: "localhost:6882",
	},

	DriverConfig: DriverConfig{
		Name: "sqlite",
		DSN:  "kasumi.sqlite",
	},

	StatsConfig: StatsConfig{
		BufferSize: 1024,
		IncludeMem: true,
		VerboseMem: false,

		MemUpdateInterval: Duration{5 * time.Second},
	},
}

// Open is a shortcut to open a file, read it, and generate a Config.
// It supports relative and absolute paths. Given "", it returns DefaultConfig.
func Open(path string) (*Config, error) {
	if path == "" {
		return &DefaultConfig, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Decode casts an io.Reader into a JSONDecoder and decodes it into a *Config.
func Decode(r io.Reader) (*Config, error) {
	conf := DefaultConfig
	err := json.NewDecoder(r).Decode(&conf)
	return &conf, err
}
