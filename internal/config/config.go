package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Escalation EscalationConfig `json:"escalation" yaml:"escalation"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
	RiskView   RiskViewConfig   `json:"risk_view" yaml:"risk_view"`
}

type EscalationConfig struct {
	RiskThreshold          float64       `json:"risk_threshold" yaml:"risk_threshold"`
	IssueSeverityThreshold float64       `json:"issue_severity_threshold" yaml:"issue_severity_threshold"`
	RiskHysteresis         float64       `json:"risk_hysteresis" yaml:"risk_hysteresis"`
	ScanInterval           time.Duration `json:"scan_interval" yaml:"scan_interval"`
	AdvanceInterval        time.Duration `json:"advance_interval" yaml:"advance_interval"`
	DefaultContactTimeout  time.Duration `json:"default_contact_timeout" yaml:"default_contact_timeout"`
}

type IngestConfig struct {
	ChannelBuffer int           `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	REST          RESTConfig    `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig   `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type NotifyConfig struct {
	Kafka       NotifyKafkaConfig `json:"kafka" yaml:"kafka"`
	RecentLimit int               `json:"recent_limit" yaml:"recent_limit"`
}

type NotifyKafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers" yaml:"brokers"`
	TopicPrefix string   `json:"topic_prefix" yaml:"topic_prefix"`
}

type RiskViewConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Escalation: EscalationConfig{
			RiskThreshold:          0.7,
			IssueSeverityThreshold: 0.8,
			RiskHysteresis:         0.05,
			ScanInterval:           15 * time.Minute,
			AdvanceInterval:        1 * time.Minute,
			DefaultContactTimeout:  3600 * time.Second,
		},
		Ingest: IngestConfig{
			ChannelBuffer: 1000,
			DedupeWindow:  5 * time.Second,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:slaengine.db?_pragma=busy_timeout(5000)"},
		Notify: NotifyConfig{
			Kafka:       NotifyKafkaConfig{Enabled: false, TopicPrefix: "slaengine"},
			RecentLimit: 1000,
		},
		RiskView: RiskViewConfig{StoreLimit: 5000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Escalation.RiskThreshold <= 0 {
		cfg.Escalation.RiskThreshold = 0.7
	}
	if cfg.Escalation.IssueSeverityThreshold <= 0 {
		cfg.Escalation.IssueSeverityThreshold = 0.8
	}
	if cfg.Escalation.RiskHysteresis < 0 {
		cfg.Escalation.RiskHysteresis = 0.05
	}
	if cfg.Escalation.ScanInterval <= 0 {
		cfg.Escalation.ScanInterval = 15 * time.Minute
	}
	if cfg.Escalation.AdvanceInterval <= 0 {
		cfg.Escalation.AdvanceInterval = 1 * time.Minute
	}
	if cfg.Escalation.DefaultContactTimeout <= 0 {
		cfg.Escalation.DefaultContactTimeout = 3600 * time.Second
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 1000
	}
	if cfg.Notify.RecentLimit <= 0 {
		cfg.Notify.RecentLimit = 1000
	}
	if cfg.Notify.Kafka.TopicPrefix == "" {
		cfg.Notify.Kafka.TopicPrefix = "slaengine"
	}
	if cfg.RiskView.StoreLimit <= 0 {
		cfg.RiskView.StoreLimit = 5000
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Notify.Kafka.Enabled && len(cfg.Notify.Kafka.Brokers) == 0 {
		return errors.New("notify.kafka.brokers required when notify.kafka.enabled is true")
	}
	if cfg.Escalation.RiskThreshold <= 0 || cfg.Escalation.RiskThreshold > 1 {
		return fmt.Errorf("escalation.risk_threshold must be in (0,1]: %v", cfg.Escalation.RiskThreshold)
	}
	if cfg.Escalation.IssueSeverityThreshold <= 0 || cfg.Escalation.IssueSeverityThreshold > 1 {
		return fmt.Errorf("escalation.issue_severity_threshold must be in (0,1]: %v", cfg.Escalation.IssueSeverityThreshold)
	}
	if cfg.Escalation.RiskHysteresis < 0 || cfg.Escalation.RiskHysteresis >= 1 {
		return fmt.Errorf("escalation.risk_hysteresis must be in [0,1): %v", cfg.Escalation.RiskHysteresis)
	}
	if cfg.Escalation.ScanInterval <= 0 {
		return errors.New("escalation.scan_interval must be > 0")
	}
	if cfg.Escalation.AdvanceInterval <= 0 {
		return errors.New("escalation.advance_interval must be > 0")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config with no backing file; Reload and
// Update on it fail. Used by tests and embedded setups.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return nil, errors.New("no config file backing this manager")
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
