// Package config loads the bot configuration from YAML. Values may
// reference environment variables with ${VAR} placeholders, which are
// expanded before parsing so secrets stay out of the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConf struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Quiet bool   `yaml:"quiet"`
}

type LLMConf struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type SheetsConf struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	Range         string `yaml:"range"`
	// CredentialsJSON holds a service account key, usually injected via
	// ${GOOGLE_CREDENTIALS_JSON}.
	CredentialsJSON string `yaml:"credentials_json"`
}

type ArchiveConf struct {
	Path string `yaml:"path"`
}

// PersistConf tunes the flush worker. Durations are strings in Go duration
// syntax ("1s", "10s"); zero values fall back to the worker defaults.
type PersistConf struct {
	Sink          string `yaml:"sink"`
	FlushInterval string `yaml:"flush_interval"`
	BatchSize     int    `yaml:"batch_size"`
	MaxBatchAge   string `yaml:"max_batch_age"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BackoffBase   string `yaml:"backoff_base"`
	BackoffCap    string `yaml:"backoff_cap"`
}

type DialogConf struct {
	SessionTTL    string `yaml:"session_ttl"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

type NotifyConf struct {
	Mode string `yaml:"mode"`
}

type Config struct {
	Server  ServerConf  `yaml:"server"`
	LLM     LLMConf     `yaml:"llm"`
	Sheets  SheetsConf  `yaml:"sheets"`
	Archive ArchiveConf `yaml:"archive"`
	Persist PersistConf `yaml:"persist"`
	Dialog  DialogConf  `yaml:"dialog"`
	Notify  NotifyConf  `yaml:"notify"`
}

// LoadFromBytes parses a YAML document after environment expansion.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// LoadFile reads and parses a config file from disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Persist.Sink == "" {
		c.Persist.Sink = "sheets"
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = "Conversations!A:E"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "data/archive.db"
	}
	if c.Dialog.SweepSchedule == "" {
		c.Dialog.SweepSchedule = "@every 1m"
	}
	if c.Notify.Mode == "" {
		c.Notify.Mode = "log"
	}
}

// duration parses s, falling back to def when s is empty or malformed.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func (p PersistConf) FlushIntervalDuration() time.Duration { return duration(p.FlushInterval, 0) }
func (p PersistConf) MaxBatchAgeDuration() time.Duration   { return duration(p.MaxBatchAge, 0) }
func (p PersistConf) BackoffBaseDuration() time.Duration   { return duration(p.BackoffBase, 0) }
func (p PersistConf) BackoffCapDuration() time.Duration    { return duration(p.BackoffCap, 0) }

// SessionTTLDuration defaults to 30 minutes of inactivity.
func (d DialogConf) SessionTTLDuration() time.Duration {
	return duration(d.SessionTTL, 30*time.Minute)
}
