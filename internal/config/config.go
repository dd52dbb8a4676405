// Package config loads and validates the naginator configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	"github.com/opsgen/naginator/internal/generate"
)

// Duration decodes Go duration strings ("20s", "2m") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// PuppetDB holds the inventory connection settings.
type PuppetDB struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Timeout     Duration `yaml:"timeout"`
	Environment string   `yaml:"environment"`
	CACert      string   `yaml:"ca_cert"`
	Cert        string   `yaml:"ssl_cert"`
	Key         string   `yaml:"ssl_key"`
}

// Nagios holds the paths and commands for the external validator and
// process manager.
type Nagios struct {
	Binary          string   `yaml:"binary"`
	MainConfig      string   `yaml:"main_config"`
	CommandsConfig  string   `yaml:"commands_config"`
	PluginConfigDir string   `yaml:"plugin_config_dir"`
	ExtraConfigDirs []string `yaml:"extra_config_dirs"`
	RestartCommand  []string `yaml:"restart_command"`
}

// Deploy holds the deployment safety settings.
type Deploy struct {
	// Safety selects when the external validator runs: "pre-apply"
	// validates only the staged tree, "post-apply" additionally
	// re-validates the live tree after copying and rolls back on
	// failure.
	Safety  string `yaml:"safety"`
	Restart bool   `yaml:"restart"`
}

// Trait is one (resource type, resource title) ownership filter for a
// host group definition.
type Trait struct {
	Type  string `yaml:"type"`
	Title string `yaml:"title"`
}

// HostGroup defines one derived host group: fact templates for the
// group name and alias, optional trait filters, and an optional
// expression over facts gating membership.
type HostGroup struct {
	Name          string  `yaml:"name"`
	NameTemplate  string  `yaml:"name_template"`
	AliasTemplate string  `yaml:"alias_template"`
	When          string  `yaml:"when"`
	Traits        []Trait `yaml:"traits"`
}

// Daemon holds the settings for periodic (serve) mode.
type Daemon struct {
	Schedule    string `yaml:"schedule"`
	Listen      string `yaml:"listen"`
	WatchConfig bool   `yaml:"watch_config"`
}

// Config is the full configuration file.
type Config struct {
	PuppetDB     PuppetDB          `yaml:"puppetdb"`
	Query        map[string]string `yaml:"query"`
	Nagios       Nagios            `yaml:"nagios"`
	ExcludeTypes []string          `yaml:"exclude_types"`
	Deploy       Deploy            `yaml:"deploy"`
	HostGroups   []HostGroup       `yaml:"hostgroups"`
	Daemon       Daemon            `yaml:"daemon"`
}

// Safety levels for Deploy.Safety.
const (
	SafetyPreApply  = "pre-apply"
	SafetyPostApply = "post-apply"
)

// Default returns a Config populated with defaults matching a stock
// nagios4 installation.
func Default() *Config {
	return &Config{
		PuppetDB: PuppetDB{
			Host:    "localhost",
			Port:    8080,
			Timeout: Duration(20 * time.Second),
		},
		Nagios: Nagios{
			Binary:          "/usr/sbin/nagios4",
			MainConfig:      "/etc/nagios4/nagios.cfg",
			CommandsConfig:  "/etc/nagios4/commands.cfg",
			PluginConfigDir: "/etc/nagios-plugins/config",
			RestartCommand:  []string{"/usr/sbin/service", "nagios4", "restart"},
		},
		Deploy: Deploy{
			Safety:  SafetyPostApply,
			Restart: true,
		},
		Daemon: Daemon{
			Schedule: "*/15 * * * *",
			Listen:   ":9270",
		},
	}
}

// Load reads path, applies it over the defaults, and validates the
// result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fails fast on settings that would otherwise only surface
// mid-run.
func (c *Config) Validate() error {
	if c.PuppetDB.Host == "" {
		return fmt.Errorf("puppetdb.host must not be empty")
	}
	if c.Deploy.Safety != SafetyPreApply && c.Deploy.Safety != SafetyPostApply {
		return fmt.Errorf("deploy.safety must be %q or %q, got %q",
			SafetyPreApply, SafetyPostApply, c.Deploy.Safety)
	}
	for i, tag := range c.ExcludeTypes {
		if !generate.ExcludableTag(tag) {
			return fmt.Errorf("exclude_types[%d]: %q is not an excludable entity type", i, tag)
		}
	}
	seen := make(map[string]bool)
	for i, hg := range c.HostGroups {
		if hg.Name == "" {
			return fmt.Errorf("hostgroups[%d]: name must not be empty", i)
		}
		if seen[hg.Name] {
			return fmt.Errorf("hostgroups[%d]: duplicate name %q", i, hg.Name)
		}
		seen[hg.Name] = true
		if hg.NameTemplate == "" {
			return fmt.Errorf("hostgroup %q: name_template must not be empty", hg.Name)
		}
		if hg.AliasTemplate == "" {
			return fmt.Errorf("hostgroup %q: alias_template must not be empty", hg.Name)
		}
		if hg.When != "" {
			if _, err := expr.Compile(hg.When); err != nil {
				return fmt.Errorf("hostgroup %q: when expression: %w", hg.Name, err)
			}
		}
		for j, tr := range hg.Traits {
			if tr.Type == "" || tr.Title == "" {
				return fmt.Errorf("hostgroup %q: traits[%d]: type and title are required", hg.Name, j)
			}
		}
	}
	return nil
}
