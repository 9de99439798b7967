// Package config provides configuration management for the dashboard service
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings holds the application configuration
type Settings struct {
	Server   ServerConfig  `json:"server"`
	Backend  BackendConfig `json:"backend"`
	Intake   IntakeConfig  `json:"intake"`
	Storage  StorageConfig `json:"storage"`
	Workers  WorkerConfig  `json:"workers"`
	Features FeatureConfig `json:"features"`
	Theme    ThemeConfig   `json:"theme"`
	Logging  LoggingConfig `json:"logging"`
	Report   ReportConfig  `json:"report"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port            int      `json:"port"`
	UIDir           string   `json:"uiDir"`
	SpoolDir        string   `json:"spoolDir"`
	CertFile        string   `json:"certFile"`
	KeyFile         string   `json:"keyFile"`
	ShutdownTimeout int      `json:"shutdownTimeout"`
	Host            string   `json:"host"`
	AllowedOrigins  []string `json:"allowedOrigins"`
}

// BackendConfig points at the detection service
type BackendConfig struct {
	BaseURL string `json:"baseURL"`
	// Endpoints overrides the default path per endpoint name
	Endpoints map[string]string `json:"endpoints"`
	// TimeoutSeconds of 0 waits until the transport resolves
	TimeoutSeconds int          `json:"timeoutSeconds"`
	OAuth          OAuth2Config `json:"oauth"`
}

// OAuth2Config enables client-credentials auth against the backend
type OAuth2Config struct {
	ClientID     string   `json:"clientID"`
	ClientSecret string   `json:"clientSecret"`
	TokenURL     string   `json:"tokenURL"`
	Scopes       []string `json:"scopes"`
}

// IntakeConfig holds the upload validation limits
type IntakeConfig struct {
	MaxSizeMB          int      `json:"maxSizeMB"`
	AcceptedTypes      []string `json:"acceptedTypes"`
	ProgressStep       int      `json:"progressStep"`
	ProgressIntervalMs int      `json:"progressIntervalMs"`
}

// StorageConfig contains evidence archive configuration
type StorageConfig struct {
	Provider string            `json:"provider"`
	Local    map[string]string `json:"local"`
	S3       map[string]string `json:"s3"`
	Google   map[string]string `json:"google"`
}

// WorkerConfig contains worker pool configuration
type WorkerConfig struct {
	Count     int `json:"count"`
	QueueSize int `json:"queueSize"`
}

// FeatureConfig contains feature flags
type FeatureConfig struct {
	EnableArchive         bool `json:"enableArchive"`
	EnableProgressUpdates bool `json:"enableProgressUpdates"`
	EnableMetrics         bool `json:"enableMetrics"`
}

// ThemeConfig controls the persisted light/dark preference
type ThemeConfig struct {
	PrefsFile string `json:"prefsFile"`
	// SystemDefault stands in for the OS colour scheme preference
	SystemDefault string `json:"systemDefault"`
}

// LoggingConfig controls the zerolog output
type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// ReportConfig holds settings for report export
type ReportConfig struct {
	UnidocLicenseKey string `json:"unidocLicenseKey"`
}

// AppConfig is the global application configuration
var AppConfig Settings

// Defaults returns the built-in configuration
func Defaults() Settings {
	return Settings{
		Server: ServerConfig{
			Port:            8080,
			UIDir:           "./ui",
			SpoolDir:        "./spool",
			ShutdownTimeout: 30,
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
		},
		Backend: BackendConfig{
			BaseURL:   "http://127.0.0.1:8000",
			Endpoints: map[string]string{},
		},
		Intake: IntakeConfig{
			MaxSizeMB:          100,
			AcceptedTypes:      []string{"video/mp4", "video/avi", "video/quicktime", "image/jpeg", "image/png"},
			ProgressStep:       5,
			ProgressIntervalMs: 100,
		},
		Storage: StorageConfig{
			Provider: "local",
			Local:    map[string]string{"basePath": "./evidence"},
		},
		Workers: WorkerConfig{
			Count:     runtime.NumCPU(),
			QueueSize: 100,
		},
		Features: FeatureConfig{
			EnableArchive:         false,
			EnableProgressUpdates: true,
			EnableMetrics:         true,
		},
		Theme: ThemeConfig{
			PrefsFile:     "./data/preferences.yaml",
			SystemDefault: "light",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a file, an optional .env file and environment variables
func LoadConfig(configFile string) error {
	AppConfig = Defaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("error reading config file: %w", err)
			}

			if err := json.Unmarshal(data, &AppConfig); err != nil {
				return fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	overrideWithEnv()

	if err := ensureDirectoriesExist(); err != nil {
		return err
	}

	return nil
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv() {
	// Server config
	if port := os.Getenv("TW_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			AppConfig.Server.Port = p
		}
	}

	if uiDir := os.Getenv("TW_UI_DIR"); uiDir != "" {
		AppConfig.Server.UIDir = uiDir
	}

	if spoolDir := os.Getenv("TW_SPOOL_DIR"); spoolDir != "" {
		AppConfig.Server.SpoolDir = spoolDir
	}

	if host := os.Getenv("TW_HOST"); host != "" {
		AppConfig.Server.Host = host
	}

	if certFile := os.Getenv("TW_CERT_FILE"); certFile != "" {
		AppConfig.Server.CertFile = certFile
	}

	if keyFile := os.Getenv("TW_KEY_FILE"); keyFile != "" {
		AppConfig.Server.KeyFile = keyFile
	}

	if origins := os.Getenv("TW_ALLOWED_ORIGINS"); origins != "" {
		AppConfig.Server.AllowedOrigins = splitList(origins)
	}

	// Backend config
	if baseURL := os.Getenv("TW_BACKEND_URL"); baseURL != "" {
		AppConfig.Backend.BaseURL = baseURL
	}

	if timeout := os.Getenv("TW_BACKEND_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			AppConfig.Backend.TimeoutSeconds = t
		}
	}

	if clientID := os.Getenv("TW_BACKEND_CLIENT_ID"); clientID != "" {
		AppConfig.Backend.OAuth.ClientID = clientID
	}

	if clientSecret := os.Getenv("TW_BACKEND_CLIENT_SECRET"); clientSecret != "" {
		AppConfig.Backend.OAuth.ClientSecret = clientSecret
	}

	if tokenURL := os.Getenv("TW_BACKEND_TOKEN_URL"); tokenURL != "" {
		AppConfig.Backend.OAuth.TokenURL = tokenURL
	}

	// Intake config
	if maxSize := os.Getenv("TW_MAX_UPLOAD_MB"); maxSize != "" {
		if m, err := strconv.Atoi(maxSize); err == nil {
			AppConfig.Intake.MaxSizeMB = m
		}
	}

	if types := os.Getenv("TW_ACCEPTED_TYPES"); types != "" {
		AppConfig.Intake.AcceptedTypes = splitList(types)
	}

	// Storage and worker config
	if provider := os.Getenv("TW_STORAGE_PROVIDER"); provider != "" {
		AppConfig.Storage.Provider = provider
	}

	if workerCount := os.Getenv("TW_WORKER_COUNT"); workerCount != "" {
		if wc, err := strconv.Atoi(workerCount); err == nil {
			AppConfig.Workers.Count = wc
		}
	}

	// Feature flags
	if enableArchive := os.Getenv("TW_ENABLE_ARCHIVE"); enableArchive != "" {
		AppConfig.Features.EnableArchive = enableArchive == "true" || enableArchive == "1"
	}

	if enableMetrics := os.Getenv("TW_ENABLE_METRICS"); enableMetrics != "" {
		AppConfig.Features.EnableMetrics = enableMetrics == "true" || enableMetrics == "1"
	}

	// Theme and logging
	if prefsFile := os.Getenv("TW_PREFS_FILE"); prefsFile != "" {
		AppConfig.Theme.PrefsFile = prefsFile
	}

	if scheme := os.Getenv("TW_PREFERS_COLOR_SCHEME"); scheme != "" {
		AppConfig.Theme.SystemDefault = scheme
	}

	if level := os.Getenv("TW_LOG_LEVEL"); level != "" {
		AppConfig.Logging.Level = level
	}

	if key := os.Getenv("TW_UNIDOC_LICENSE_KEY"); key != "" {
		AppConfig.Report.UnidocLicenseKey = key
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ensureDirectoriesExist creates required directories if they don't exist
func ensureDirectoriesExist() error {
	dirs := []string{
		AppConfig.Server.SpoolDir,
		filepath.Dir(AppConfig.Theme.PrefsFile),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}

		dir = filepath.Clean(dir)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetAddressString returns the address string for the server to listen on
func GetAddressString() string {
	return fmt.Sprintf("%s:%d", AppConfig.Server.Host, AppConfig.Server.Port)
}

// EndpointPath returns the configured path override for an endpoint, if any
func EndpointPath(name string) (string, bool) {
	p, ok := AppConfig.Backend.Endpoints[name]
	return p, ok && p != ""
}
