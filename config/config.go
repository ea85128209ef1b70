package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "pairshare"
	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "PAIRSHARE_DATA_DIR"
	// DefaultTransferPort is the fixed TCP port the group owner listens on.
	DefaultTransferPort = 1995
	// DefaultAcceptTimeoutSeconds bounds how long a listener waits for a peer.
	DefaultAcceptTimeoutSeconds = 30
	// DefaultConnectTimeoutSeconds bounds the sender's dial.
	DefaultConnectTimeoutSeconds = 30
	// DefaultChunkSize is the file streaming chunk size in bytes.
	DefaultChunkSize = 100 * 1024
	// DefaultScanTimeoutSeconds is the length of one discovery round.
	DefaultScanTimeoutSeconds = 3
	// DefaultHistoryRetentionDays is how long finished transfers are kept.
	DefaultHistoryRetentionDays = 90
	// DefaultLogLevel is used when log_level is empty or unknown.
	DefaultLogLevel = "info"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// DeviceConfig contains persistent local-device settings.
type DeviceConfig struct {
	DeviceID              string `json:"device_id" yaml:"device_id"`
	DeviceName            string `json:"device_name" yaml:"device_name"`
	TransferPort          int    `json:"transfer_port" yaml:"transfer_port"`
	AcceptTimeoutSeconds  int    `json:"accept_timeout_seconds" yaml:"accept_timeout_seconds"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	ChunkSize             int    `json:"chunk_size" yaml:"chunk_size"`
	ReceiveDir            string `json:"receive_dir" yaml:"receive_dir"`
	ScanTimeoutSeconds    int    `json:"scan_timeout_seconds" yaml:"scan_timeout_seconds"`
	// HistoryRetentionDays of zero means the default, negative keeps history forever.
	HistoryRetentionDays  int    `json:"history_retention_days" yaml:"history_retention_days"`
	LogLevel              string `json:"log_level" yaml:"log_level"`
}

// AcceptTimeout returns the listener timeout as a duration.
func (c *DeviceConfig) AcceptTimeout() time.Duration {
	return time.Duration(c.AcceptTimeoutSeconds) * time.Second
}

// ConnectTimeout returns the dial timeout as a duration.
func (c *DeviceConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// HistoryRetention returns how long finished transfers are kept. Zero
// disables pruning.
func (c *DeviceConfig) HistoryRetention() time.Duration {
	if c.HistoryRetentionDays < 0 {
		return 0
	}
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// ScanTimeout returns the discovery round length as a duration.
func (c *DeviceConfig) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If PAIRSHARE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "received"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads a config file from disk. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (*DeviceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg DeviceConfig
	if isYAML(path) {
		err = yaml.Unmarshal(raw, &cfg)
	} else {
		err = json.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes the config in the format implied by its extension.
func Save(path string, cfg *DeviceConfig) error {
	var (
		raw []byte
		err error
	)
	if isYAML(path) {
		raw, err = yaml.Marshal(cfg)
	} else {
		raw, err = json.MarshalIndent(cfg, "", "  ")
		raw = append(raw, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist under the resolved data
// directory, then returns both.
func LoadOrCreate() (*DeviceConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	return LoadOrCreateIn(dataDir, "")
}

// LoadOrCreateIn is LoadOrCreate with an explicit data directory and an
// optional explicit config path.
func LoadOrCreateIn(dataDir, cfgPath string) (*DeviceConfig, string, error) {
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}
	if cfgPath == "" {
		cfgPath = ConfigPath(dataDir)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *DeviceConfig {
	cfg := &DeviceConfig{}
	normalizeDefaults(cfg, dataDir)
	return cfg
}

func normalizeDefaults(cfg *DeviceConfig, dataDir string) bool {
	updated := false

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		updated = true
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName()
		updated = true
	}

	if cfg.TransferPort <= 0 || cfg.TransferPort > 65535 {
		cfg.TransferPort = DefaultTransferPort
		updated = true
	}

	if cfg.AcceptTimeoutSeconds <= 0 {
		cfg.AcceptTimeoutSeconds = DefaultAcceptTimeoutSeconds
		updated = true
	}

	if cfg.ConnectTimeoutSeconds <= 0 {
		cfg.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
		updated = true
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
		updated = true
	}

	if cfg.ReceiveDir == "" {
		cfg.ReceiveDir = filepath.Join(dataDir, "received")
		updated = true
	}

	if cfg.ScanTimeoutSeconds <= 0 {
		cfg.ScanTimeoutSeconds = DefaultScanTimeoutSeconds
		updated = true
	}

	if cfg.HistoryRetentionDays == 0 {
		cfg.HistoryRetentionDays = DefaultHistoryRetentionDays
		updated = true
	}

	level := normalizeLogLevel(cfg.LogLevel)
	if cfg.LogLevel != level {
		cfg.LogLevel = level
		updated = true
	}

	return updated
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "Pairshare Device"
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return "debug"
	case "info":
		return "info"
	case "warn":
		return "warn"
	case "error":
		return "error"
	default:
		return DefaultLogLevel
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
