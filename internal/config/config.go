package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Store backends understood by the store package
const (
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Config holds all configuration for the mnconfig server
type Config struct {
	// Source is the file the configuration was read from, empty when
	// running on defaults only.
	Source string

	Server struct {
		TraceLogEnabled   bool
		DevHelpersEnabled bool
	}

	HTTP struct {
		Interface    string
		Port         int
		AuthEnabled  bool
		Logins       map[string]string
		CORSOrigins  []string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}

	Store struct {
		Backend       string
		DataDir       string
		SchemaDir     string
		AssetsDir     string
		WatchRegistry bool
	}

	Log struct {
		LogPath       string
		MaxLines      int
		RetentionDays int
	}
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var cfg Config

	cfg.Server.TraceLogEnabled = false
	cfg.Server.DevHelpersEnabled = true

	cfg.HTTP.Interface = "0.0.0.0"
	cfg.HTTP.Port = 8000
	cfg.HTTP.AuthEnabled = false
	cfg.HTTP.Logins = make(map[string]string)
	cfg.HTTP.CORSOrigins = []string{"*"}
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second

	cfg.Store.Backend = BackendJSON
	cfg.Store.DataDir = "data"
	cfg.Store.SchemaDir = "schemas"
	cfg.Store.AssetsDir = filepath.Join("var", "www", "assets")
	cfg.Store.WatchRegistry = true

	cfg.Log.LogPath = "logs"
	cfg.Log.MaxLines = 5000
	cfg.Log.RetentionDays = 40

	return &cfg
}

// LoadConfig loads the configuration from the specified INI file.
// A missing file is not an error: the defaults are returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load config file %s", path)
	}
	cfg.Source = path

	// [SRV_COMMON] section
	commonSec := iniFile.Section("SRV_COMMON")
	cfg.Server.TraceLogEnabled = commonSec.Key("TraceLogEnabled").MustBool(cfg.Server.TraceLogEnabled)
	cfg.Server.DevHelpersEnabled = commonSec.Key("DevHelpersEnabled").MustBool(cfg.Server.DevHelpersEnabled)

	// [SRV_HTTP] section
	httpSec := iniFile.Section("SRV_HTTP")
	cfg.HTTP.Interface = httpSec.Key("HTTP_IPInterface").MustString(cfg.HTTP.Interface)
	cfg.HTTP.Port = httpSec.Key("HTTP_Port").MustInt(cfg.HTTP.Port)
	cfg.HTTP.AuthEnabled = httpSec.Key("AuthEnabled").MustBool(cfg.HTTP.AuthEnabled)
	cfg.HTTP.ReadTimeout = httpSec.Key("ReadTimeout").MustDuration(cfg.HTTP.ReadTimeout)
	cfg.HTTP.WriteTimeout = httpSec.Key("WriteTimeout").MustDuration(cfg.HTTP.WriteTimeout)
	if httpSec.HasKey("CORSOrigins") {
		cfg.HTTP.CORSOrigins = httpSec.Key("CORSOrigins").Strings(",")
	}

	// [SRV_HTTPLOGINS] section
	loginSec := iniFile.Section("SRV_HTTPLOGINS")
	for _, key := range loginSec.Keys() {
		cfg.HTTP.Logins[key.Name()] = key.String()
	}

	// [SRV_STORE] section
	storeSec := iniFile.Section("SRV_STORE")
	cfg.Store.Backend = strings.ToLower(storeSec.Key("Backend").MustString(cfg.Store.Backend))
	cfg.Store.DataDir = storeSec.Key("DataDir").MustString(cfg.Store.DataDir)
	cfg.Store.SchemaDir = storeSec.Key("SchemaDir").MustString(cfg.Store.SchemaDir)
	cfg.Store.AssetsDir = storeSec.Key("AssetsDir").MustString(cfg.Store.AssetsDir)
	cfg.Store.WatchRegistry = storeSec.Key("WatchRegistry").MustBool(cfg.Store.WatchRegistry)

	// [SRV_LOG] section
	logSec := iniFile.Section("SRV_LOG")
	cfg.Log.LogPath = logSec.Key("LogPath").MustString(cfg.Log.LogPath)
	cfg.Log.MaxLines = logSec.Key("MaxLines").MustInt(cfg.Log.MaxLines)
	cfg.Log.RetentionDays = logSec.Key("RetentionDays").MustInt(cfg.Log.RetentionDays)

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the container environment override file values
func (c *Config) applyEnv() {
	if logPath := os.Getenv("LOG_PATH"); logPath != "" {
		c.Log.LogPath = logPath
	}
	if port := os.Getenv("MNCONFIG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = p
		}
	}
}

// Validate checks values that would only fail later at startup
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendJSON, BackendBolt, BackendSQLite:
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("invalid HTTP port %d", c.HTTP.Port)
	}
	if c.HTTP.AuthEnabled && len(c.HTTP.Logins) == 0 {
		return errors.New("AuthEnabled requires at least one entry in [SRV_HTTPLOGINS]")
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Interface, c.HTTP.Port)
}

// RegistryPath is the location of the component registry file
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Store.SchemaDir, "registry.json")
}

// Save writes the current configuration to the specified file
func (c *Config) Save(path string) error {
	file := ini.Empty()

	// [SRV_COMMON] section
	commonSec, _ := file.NewSection("SRV_COMMON")
	commonSec.NewKey("TraceLogEnabled", fmt.Sprintf("%t", c.Server.TraceLogEnabled))
	commonSec.NewKey("DevHelpersEnabled", fmt.Sprintf("%t", c.Server.DevHelpersEnabled))

	// [SRV_HTTP] section
	httpSec, _ := file.NewSection("SRV_HTTP")
	httpSec.NewKey("HTTP_IPInterface", c.HTTP.Interface)
	httpSec.NewKey("HTTP_Port", fmt.Sprintf("%d", c.HTTP.Port))
	httpSec.NewKey("AuthEnabled", fmt.Sprintf("%t", c.HTTP.AuthEnabled))
	httpSec.NewKey("CORSOrigins", strings.Join(c.HTTP.CORSOrigins, ","))
	httpSec.NewKey("ReadTimeout", c.HTTP.ReadTimeout.String())
	httpSec.NewKey("WriteTimeout", c.HTTP.WriteTimeout.String())

	// [SRV_HTTPLOGINS] section
	loginSec, _ := file.NewSection("SRV_HTTPLOGINS")
	for user, pass := range c.HTTP.Logins {
		loginSec.NewKey(user, pass)
	}

	// [SRV_STORE] section
	storeSec, _ := file.NewSection("SRV_STORE")
	storeSec.NewKey("Backend", c.Store.Backend)
	storeSec.NewKey("DataDir", c.Store.DataDir)
	storeSec.NewKey("SchemaDir", c.Store.SchemaDir)
	storeSec.NewKey("AssetsDir", c.Store.AssetsDir)
	storeSec.NewKey("WatchRegistry", fmt.Sprintf("%t", c.Store.WatchRegistry))

	// [SRV_LOG] section
	logSec, _ := file.NewSection("SRV_LOG")
	logSec.NewKey("LogPath", c.Log.LogPath)
	logSec.NewKey("MaxLines", fmt.Sprintf("%d", c.Log.MaxLines))
	logSec.NewKey("RetentionDays", fmt.Sprintf("%d", c.Log.RetentionDays))

	return file.SaveTo(path)
}
