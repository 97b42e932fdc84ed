// Package config loads bbp settings from bbp.toml and the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/binaryphile/bbplayer/internal/link"
	"github.com/binaryphile/bbplayer/internal/nand"
)

// FileName is the configuration file searched for.
const FileName = "bbp.toml"

// Config is the full bbp configuration.
type Config struct {
	USB     USBConfig     `toml:"usb"`
	NAND    nand.Geometry `toml:"nand"`
	Link    LinkConfig    `toml:"link"`
	Logging LoggingConfig `toml:"logging"`
}

// USBConfig identifies the player on the bus.
type USBConfig struct {
	VendorID    uint16 `toml:"vendor_id"`
	ProductID   uint16 `toml:"product_id"`
	Config      int    `toml:"config"`
	Interface   int    `toml:"interface"`
	EndpointIn  int    `toml:"endpoint_in"`
	EndpointOut int    `toml:"endpoint_out"`
}

// LinkConfig holds transfer timing.
type LinkConfig struct {
	Timeout      Duration `toml:"timeout"`
	ReadyTimeout Duration `toml:"ready_timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string such as "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the settings for a retail player.
func Default() Config {
	lo := link.DefaultOptions()
	return Config{
		USB: USBConfig{
			VendorID:    0x1527,
			ProductID:   0xBBDB,
			Config:      1,
			Interface:   0,
			EndpointIn:  0x82,
			EndpointOut: 0x02,
		},
		NAND: nand.DefaultGeometry(),
		Link: LinkConfig{
			Timeout:      Duration{lo.Timeout},
			ReadyTimeout: Duration{lo.ReadyTimeout},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// SearchPaths returns the ordered list of places FileName is looked for.
func SearchPaths() []string {
	var paths []string

	// 1. System directory
	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "bbp", FileName))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", "bbp", FileName))
	default:
		paths = append(paths, filepath.Join("/etc/bbp", FileName))
	}

	// 2. User config directory
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "bbp", FileName))
	}

	// 3. Executable directory
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), FileName))
	}

	// 4. Current working directory (lowest priority)
	paths = append(paths, filepath.Join(".", FileName))

	return paths
}

// Find returns the first existing path from SearchPaths, or "".
func Find() string {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the configuration at path, or the first file found on the
// search path when path is empty, over the defaults, then applies
// environment overrides. No file found is not an error. The path actually
// used is returned.
func Load(path string) (Config, string, error) {
	cfg := Default()
	if path == "" {
		path = Find()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, path, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, path, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, path, err
	}
	return cfg, path, nil
}

// ApplyEnvOverrides applies BBP_LOG_LEVEL, BBP_VENDOR_ID and BBP_PRODUCT_ID.
func ApplyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("BBP_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	for _, o := range []struct {
		env string
		dst *uint16
	}{
		{"BBP_VENDOR_ID", &cfg.USB.VendorID},
		{"BBP_PRODUCT_ID", &cfg.USB.ProductID},
	} {
		val := os.Getenv(o.env)
		if val == "" {
			continue
		}
		id, err := strconv.ParseUint(val, 0, 16)
		if err != nil {
			return fmt.Errorf("%s: %w", o.env, err)
		}
		*o.dst = uint16(id)
	}
	return nil
}

// Validate checks values the rest of bbp cannot work with.
func (c Config) Validate() error {
	if err := c.NAND.Validate(); err != nil {
		return fmt.Errorf("nand: %w", err)
	}
	if c.Link.Timeout.Duration <= 0 || c.Link.ReadyTimeout.Duration <= 0 {
		return fmt.Errorf("link: timeouts must be positive")
	}
	return nil
}

// LinkOptions converts the link section.
func (c Config) LinkOptions() link.Options {
	return link.Options{
		Timeout:      c.Link.Timeout.Duration,
		ReadyTimeout: c.Link.ReadyTimeout.Duration,
	}
}

// Write encodes cfg as TOML to path, creating its directory.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, cfg); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}
