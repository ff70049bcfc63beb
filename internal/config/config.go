package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level TOML structure. Every field has a compiled-in
// default; the config file itself is optional.
type Config struct {
	Paths      PathsConfig      `toml:"paths" mapstructure:"paths"`
	Supervisor SupervisorConfig `toml:"supervisor" mapstructure:"supervisor"`
	Stress     StressConfig     `toml:"stress" mapstructure:"stress"`
	Watchdog   WatchdogConfig   `toml:"watchdog" mapstructure:"watchdog"`
	Backup     BackupConfig     `toml:"backup" mapstructure:"backup"`
	Verify     VerifyConfig     `toml:"verify" mapstructure:"verify"`
	Log        LogConfig        `toml:"log" mapstructure:"log"`
	Journal    JournalConfig    `toml:"journal" mapstructure:"journal"`
}

type PathsConfig struct {
	// Descriptor is the control plane's config location for our group.
	Descriptor string `toml:"descriptor" mapstructure:"descriptor"`
	BackupDir  string `toml:"backup_dir" mapstructure:"backup_dir"`
	State      string `toml:"state" mapstructure:"state"`
	Lock       string `toml:"lock" mapstructure:"lock"`
	LogDir     string `toml:"log_dir" mapstructure:"log_dir"`
}

type SupervisorConfig struct {
	CtlBin         string        `toml:"ctl_bin" mapstructure:"ctl_bin"`
	CtlArgs        []string      `toml:"ctl_args" mapstructure:"ctl_args"`
	Group          string        `toml:"group" mapstructure:"group"`
	CommandTimeout time.Duration `toml:"command_timeout" mapstructure:"command_timeout"`
	// ServiceRestart is the argv run once when the control-plane daemon
	// itself looks down.
	ServiceRestart []string      `toml:"service_restart" mapstructure:"service_restart"`
	ServiceSettle  time.Duration `toml:"service_settle" mapstructure:"service_settle"`
}

type StressConfig struct {
	Bin string `toml:"bin" mapstructure:"bin"`
}

type WatchdogConfig struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Listen   string        `toml:"listen" mapstructure:"listen"`
}

type BackupConfig struct {
	Retention int `toml:"retention" mapstructure:"retention"`
}

type VerifyConfig struct {
	Settle    time.Duration `toml:"settle" mapstructure:"settle"`
	Attempts  int           `toml:"attempts" mapstructure:"attempts"`
	Delay     time.Duration `toml:"delay" mapstructure:"delay"`
	StopGrace time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type JournalConfig struct {
	// DSN selects the journal sink; empty means no journal.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Descriptor: "/etc/supervisor/conf.d/keepbusy.conf",
			BackupDir:  "/var/lib/keepbusy/backups",
			State:      "/var/lib/keepbusy/state",
			Lock:       "/var/lib/keepbusy/keepbusy.lock",
			LogDir:     "/var/log/keepbusy",
		},
		Supervisor: SupervisorConfig{
			CtlBin:         "supervisorctl",
			Group:          "keepbusy",
			CommandTimeout: 30 * time.Second,
			ServiceRestart: []string{"systemctl", "restart", "supervisor"},
			ServiceSettle:  2 * time.Second,
		},
		Stress: StressConfig{Bin: "stress-ng"},
		Watchdog: WatchdogConfig{
			Interval: 30 * time.Second,
			Listen:   "127.0.0.1:8321",
		},
		Backup: BackupConfig{Retention: 5},
		Verify: VerifyConfig{
			Settle:    2 * time.Second,
			Attempts:  3,
			Delay:     2 * time.Second,
			StopGrace: 3 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path
// returns the defaults unchanged; a missing file at an explicit path is
// an error, because the operator asked for it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the current settings back to path as TOML. Used by the
// advanced-settings menu so edits survive the session.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("paths.descriptor", c.Paths.Descriptor)
	v.Set("paths.backup_dir", c.Paths.BackupDir)
	v.Set("paths.state", c.Paths.State)
	v.Set("paths.lock", c.Paths.Lock)
	v.Set("paths.log_dir", c.Paths.LogDir)

	v.Set("supervisor.ctl_bin", c.Supervisor.CtlBin)
	v.Set("supervisor.ctl_args", c.Supervisor.CtlArgs)
	v.Set("supervisor.group", c.Supervisor.Group)
	v.Set("supervisor.command_timeout", c.Supervisor.CommandTimeout.String())
	v.Set("supervisor.service_restart", c.Supervisor.ServiceRestart)
	v.Set("supervisor.service_settle", c.Supervisor.ServiceSettle.String())

	v.Set("stress.bin", c.Stress.Bin)

	v.Set("watchdog.interval", c.Watchdog.Interval.String())
	v.Set("watchdog.listen", c.Watchdog.Listen)

	v.Set("backup.retention", c.Backup.Retention)

	v.Set("verify.settle", c.Verify.Settle.String())
	v.Set("verify.attempts", c.Verify.Attempts)
	v.Set("verify.delay", c.Verify.Delay.String())
	v.Set("verify.stop_grace", c.Verify.StopGrace.String())

	v.Set("log.level", c.Log.Level)
	v.Set("log.color", c.Log.Color)
	v.Set("log.file", c.Log.File)
	v.Set("log.max_size_mb", c.Log.MaxSizeMB)
	v.Set("log.max_backups", c.Log.MaxBackups)
	v.Set("log.max_age_days", c.Log.MaxAgeDays)
	v.Set("log.compress", c.Log.Compress)

	v.Set("journal.dsn", c.Journal.DSN)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
