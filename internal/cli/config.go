package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/hujson"
)

// Output formats.
const (
	FormatBytes = "bytes"
	FormatHuman = "human"
	FormatJSON  = "json"
)

const defaultCreateMode = "0644"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Format     string `json:"format,omitempty"`
	CreateMode string `json:"create_mode,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string      `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	Perm         os.FileMode `json:"-"` // CreateMode parsed as permission bits

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
// Format is left empty; it is chosen from the output stream when unset.
func DefaultConfig() Config {
	return Config{
		CreateMode: defaultCreateMode,
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".fsize.json"

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/fsize/config.json if set, otherwise ~/.config/fsize/config.json.
// Returns empty string if home directory cannot be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsize", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fsize", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	FormatOverride  string            // -f/--format flag value; empty means no override
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/fsize/config.json or $XDG_CONFIG_HOME/fsize/config.json)
// 3. Project config file at default location (.fsize.json, if exists)
// 4. Explicit config file via ConfigPath (if non-empty)
// 5. CLI overrides.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if input.FormatOverride != "" {
		cfg.Format = input.FormatOverride
	}

	perm, err := validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.Perm = perm

	if filepath.IsAbs(workDir) {
		cfg.EffectiveCwd = workDir
	} else {
		abs, absErr := filepath.Abs(workDir)
		if absErr != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", absErr)
		}

		cfg.EffectiveCwd = abs
	}

	return cfg, nil
}

// loadGlobalConfig loads the global user config file if it exists.
// Returns the config, the path if loaded, and any error.
func loadGlobalConfig(env map[string]string) (Config, string, error) {
	globalCfgPath := getGlobalConfigPath(env)
	if globalCfgPath == "" {
		return Config{}, "", nil
	}

	globalCfg, loaded, err := loadConfigFile(globalCfgPath, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return globalCfg, globalCfgPath, nil
}

// loadProjectConfig loads the project config file (.fsize.json) or an explicit config file.
// Returns the config, the path if loaded, and any error.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		// Explicit config file - must exist
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		_, statErr := os.Stat(cfgFile)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	fileCfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return fileCfg, cfgFile, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files return zero config.
// Returns the config, whether the file was loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Format != "" {
		base.Format = overlay.Format
	}

	if overlay.CreateMode != "" {
		base.CreateMode = overlay.CreateMode
	}

	return base
}

// validateConfig checks the merged config and returns CreateMode as
// permission bits.
func validateConfig(cfg Config) (os.FileMode, error) {
	switch cfg.Format {
	case "", FormatBytes, FormatHuman, FormatJSON:
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
	}

	mode, err := strconv.ParseUint(cfg.CreateMode, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCreateMode, cfg.CreateMode)
	}

	return os.FileMode(mode), nil
}
