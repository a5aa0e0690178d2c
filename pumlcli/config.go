package pumlcli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
	"oss.terrastruct.com/xos"

	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

// Config is the user editable configuration. Flags and their environment variables
// take precedence over it.
type Config struct {
	Server     string `koanf:"server" yaml:"server"`
	Host       string `koanf:"host" yaml:"host"`
	Port       string `koanf:"port" yaml:"port"`
	Browser    string `koanf:"browser" yaml:"browser,omitempty"`
	PanzoomURL string `koanf:"panzoom_url" yaml:"panzoom_url"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:     pumlsvc.DefaultServer,
		Host:       "localhost",
		Port:       "0",
		PanzoomURL: pumlpreview.DefaultPanzoomURL,
	}
}

// ConfigPath is $PUMLVIEW_CONFIG or config.yml under the user config directory.
func ConfigPath(e *xos.Env) string {
	if p := e.Getenv("PUMLVIEW_CONFIG"); p != "" {
		return p
	}
	dir := e.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "pumlview", "config.yml")
}

// LoadConfig reads the YAML file at path, if it exists, then overlays PUMLVIEW_*
// environment variables.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// PUMLVIEW_PANZOOM_URL -> panzoom_url
	err := k.Load(env.Provider("PUMLVIEW_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "PUMLVIEW_"))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server %q must be an http or https URL", c.Server)
	}
	return nil
}

// Save writes c to path as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func configCmd(ctx context.Context, ms *xmain.State, cfg *Config, cfgPath string) error {
	args := ms.Opts.Flags.Args()
	if len(args) != 2 {
		return xmain.UsageErrorf("config must be passed one of: init, show")
	}
	switch args[1] {
	case "init":
		if cfgPath == "" {
			return xmain.UsageErrorf("could not determine the config path, pass --config")
		}
		_, err := os.Stat(cfgPath)
		if err == nil {
			return xmain.UsageErrorf("%s already exists", ms.HumanPath(cfgPath))
		}
		err = DefaultConfig().Save(cfgPath)
		if err != nil {
			return err
		}
		ms.Log.Success.Printf("wrote %s", ms.HumanPath(cfgPath))
		return nil
	case "show":
		b, err := yamlv3.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(ms.Stdout, "# %s\n%s", cfgPath, b)
		return nil
	}
	return xmain.UsageErrorf("unknown config subcommand %q", args[1])
}
