package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevecastle/vr180/platform"
)

// S3 configures optional publishing of finished videos.
type S3 struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Prefix          string `json:"prefix"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	UsePathStyle    bool   `json:"usePathStyle"`
}

// Enabled reports whether a bucket is configured.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Config holds the service configuration: storage locations, the external
// engine binaries and the default VR180 conversion settings.
type Config struct {
	DBPath string `json:"dbPath"`

	// Where per-job intermediate frames live; removed when a job ends.
	WorkspaceDir string `json:"workspaceDir"`
	// Where finished videos are written.
	OutputDir string `json:"outputDir"`

	ListenAddr     string `json:"listenAddr"`
	JobConcurrency int    `json:"jobConcurrency"`

	// Optional explicit paths; empty means look in the tools dir, then PATH.
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`

	// JWTSecret turns on API authentication when set.
	JWTSecret string `json:"jwtSecret,omitempty"`

	VR180 VR180 `json:"vr180"`
	S3    S3    `json:"s3"`
}

// AuthEnabled reports whether the API requires a login.
func (c Config) AuthEnabled() bool { return c.JWTSecret != "" }

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultDBPath returns the default database path.
// Uses the platform-specific data directory.
func DefaultDBPath() string {
	return filepath.Join(platform.GetDataDir(), "jobs.db")
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

func defaultWorkspaceDir() string {
	return filepath.Join(platform.GetTempDir(), "jobs")
}

func defaultOutputDir() string {
	return filepath.Join(platform.GetDataDir(), "output")
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		DBPath:         DefaultDBPath(),
		WorkspaceDir:   defaultWorkspaceDir(),
		OutputDir:      defaultOutputDir(),
		ListenAddr:     "127.0.0.1:5000",
		JobConcurrency: 1,
		VR180:          DefaultVR180(),
	}
}

// Default exposes the built-in defaults without touching disk.
func Default() Config {
	return defaultConfig()
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// fillDefaults copies defaults into zero-valued fields and reports whether a
// field that must persist was missing.
func fillDefaults(c *Config) bool {
	def := defaultConfig()
	needsSave := false

	if c.DBPath == "" {
		c.DBPath = def.DBPath
		needsSave = true
	}
	if c.WorkspaceDir == "" {
		c.WorkspaceDir = def.WorkspaceDir
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.JobConcurrency <= 0 {
		c.JobConcurrency = def.JobConcurrency
	}

	return needsSave
}

// Parse decodes a config document over the defaults, so absent keys keep
// their default and explicit zeros are honoured. The bool reports that a
// field which must persist was missing.
func Parse(data []byte) (Config, bool, error) {
	c := defaultConfig()
	c.DBPath = ""
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, false, fmt.Errorf("failed to parse config JSON: %v", err)
	}
	needsSave := fillDefaults(&c)
	return c, needsSave, nil
}

// Load reads the config from disk and updates the in-memory config. It returns the config and path.
// If the config file doesn't exist, it creates one with default values.
func Load() (Config, string, error) {
	path := getConfigPath()

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %v", configDir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			def := defaultConfig()
			if err := ensureDirs(def); err != nil {
				return Config{}, "", err
			}
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %v", saveErr)
			}
			Set(def)
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	c, needsSave, err := Parse(data)
	if err != nil {
		return Config{}, path, err
	}
	if err := c.VR180.Validate(); err != nil {
		return Config{}, path, err
	}
	if err := ensureDirs(c); err != nil {
		return Config{}, path, err
	}

	if needsSave {
		if _, saveErr := Save(c); saveErr != nil {
			// Keep going with the in-memory config.
			fmt.Printf("Warning: failed to save updated config: %v\n", saveErr)
		}
	}

	Set(c)
	return c, path, nil
}

func ensureDirs(c Config) error {
	for _, dir := range []string{filepath.Dir(c.DBPath), c.WorkspaceDir, c.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}
	}
	return nil
}

// Save writes the config to disk, creating the directory as needed. Keys the
// file holds that Config does not know about are preserved. Returns the path.
func Save(c Config) (string, error) {
	path := getConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %v", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %v", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %v", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %v", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %v", err)
	}
	Set(c)
	return path, nil
}
