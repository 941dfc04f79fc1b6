// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/vserverctl/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied when a key is not set.
const (
	DefaultEndpoint      = "https://www.servercontrolpanel.de/WSEndUser"
	DefaultCooldown      = 60 * time.Second
	DefaultEventsSubject = "vserverctl.reboot"
)

type hostEntry struct {
	Server string `mapstructure:"server"`
	URL    string `mapstructure:"url"`
}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. Files ending in .sh or .env
// are read as KEY=VALUE credential files (LOGIN_NAME, PASSWORD).
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".sh", ".env":
		p.v.SetConfigType("dotenv")
	}

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads YAML configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadLegacyReader loads a KEY=VALUE credential file from a string.
func (p *Parser) LoadLegacyReader(content string) (*models.Config, error) {
	p.v.SetConfigType("dotenv")
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	// Parse netcup credentials (required). Legacy files only carry the two
	// top-level keys.
	cfg.Netcup = models.NetcupConfig{
		LoginName: p.expandEnv(p.firstString("netcup.login_name", "login_name")),
		Password:  p.expandEnv(p.firstString("netcup.password", "password")),
		Endpoint:  p.v.GetString("netcup.endpoint"),
		Timeout:   p.duration("netcup.timeout"),
	}

	if cfg.Netcup.LoginName == "" {
		return nil, fmt.Errorf("netcup.login_name is required")
	}
	if cfg.Netcup.Password == "" {
		return nil, fmt.Errorf("netcup.password is required")
	}
	if cfg.Netcup.Endpoint == "" {
		cfg.Netcup.Endpoint = DefaultEndpoint
	}
	if cfg.Netcup.Timeout == 0 {
		cfg.Netcup.Timeout = 30 * time.Second
	}

	// Parse download client settings.
	cfg.QBittorrent = models.QBittorrentConfig{
		Scheme:   p.v.GetString("qbittorrent.scheme"),
		Port:     p.v.GetInt("qbittorrent.port"),
		Username: p.expandEnv(p.v.GetString("qbittorrent.username")),
		Password: p.expandEnv(p.v.GetString("qbittorrent.password")),
		Timeout:  p.duration("qbittorrent.timeout"),
		Hosts:    map[string]string{},
	}

	if cfg.QBittorrent.Scheme == "" {
		cfg.QBittorrent.Scheme = "http"
	}
	if cfg.QBittorrent.Scheme != "http" && cfg.QBittorrent.Scheme != "https" {
		return nil, fmt.Errorf("qbittorrent.scheme must be one of: http, https")
	}
	if cfg.QBittorrent.Port == 0 {
		cfg.QBittorrent.Port = 8080
	}
	if cfg.QBittorrent.Timeout == 0 {
		cfg.QBittorrent.Timeout = 10 * time.Second
	}
	// Viper folds map keys to lower case, so per-server hosts are a list to
	// keep nicknames intact.
	var hosts []hostEntry
	if err := p.v.UnmarshalKey("qbittorrent.hosts", &hosts); err != nil {
		return nil, fmt.Errorf("qbittorrent.hosts: %w", err)
	}
	for _, h := range hosts {
		if h.Server == "" {
			return nil, fmt.Errorf("qbittorrent.hosts entries require a server")
		}
		u, err := url.Parse(p.expandEnv(h.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("qbittorrent.hosts url for %q must be an absolute URL", h.Server)
		}
		cfg.QBittorrent.Hosts[h.Server] = strings.TrimRight(u.String(), "/")
	}

	// Parse reboot dwell periods.
	cfg.Reboot = models.RebootSettings{
		PauseCooldown: DefaultCooldown,
		BootCooldown:  DefaultCooldown,
	}
	if p.v.IsSet("reboot.pause_cooldown") {
		cfg.Reboot.PauseCooldown = p.duration("reboot.pause_cooldown")
	}
	if p.v.IsSet("reboot.boot_cooldown") {
		cfg.Reboot.BootCooldown = p.duration("reboot.boot_cooldown")
	}

	// Parse optional SSH probe config.
	if p.v.IsSet("ssh") {
		cfg.SSH = &models.SSHConfig{
			Username: p.v.GetString("ssh.username"),
			Port:     p.v.GetInt("ssh.port"),
			KeyPath:  p.expandEnv(p.v.GetString("ssh.key_path")),
			Timeout:  p.duration("ssh.timeout"),
		}

		if cfg.SSH.KeyPath == "" {
			return nil, fmt.Errorf("ssh.key_path is required when ssh is configured")
		}
		if cfg.SSH.Username == "" {
			cfg.SSH.Username = "root"
		}
		if cfg.SSH.Port == 0 {
			cfg.SSH.Port = 22
		}
		if cfg.SSH.Timeout == 0 {
			cfg.SSH.Timeout = 10 * time.Second
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	// Parse optional metrics config.
	if p.v.IsSet("metrics") {
		cfg.Metrics = &models.MetricsConfig{
			TextfilePath: p.expandEnv(p.v.GetString("metrics.textfile_path")),
		}

		if cfg.Metrics.TextfilePath == "" {
			return nil, fmt.Errorf("metrics.textfile_path is required when metrics is configured")
		}
	}

	// Parse optional events config.
	if p.v.IsSet("events") {
		cfg.Events = &models.EventsConfig{
			NATSURL: p.expandEnv(p.v.GetString("events.nats_url")),
			Subject: p.v.GetString("events.subject"),
		}

		if cfg.Events.NATSURL == "" {
			return nil, fmt.Errorf("events.nats_url is required when events is configured")
		}
		if cfg.Events.Subject == "" {
			cfg.Events.Subject = DefaultEventsSubject
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// duration reads a duration key. Bare numbers are seconds, as in the legacy
// config files; viper alone would read them as nanoseconds.
func (p *Parser) duration(key string) time.Duration {
	switch v := p.v.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	}
	return p.v.GetDuration(key)
}

// firstString returns the first non-empty value among keys.
func (p *Parser) firstString(keys ...string) string {
	for _, key := range keys {
		if s := p.v.GetString(key); s != "" {
			return s
		}
	}
	return ""
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Netcup.LoginName == "" {
		return fmt.Errorf("netcup.login_name is required")
	}

	if cfg.Netcup.Password == "" {
		return fmt.Errorf("netcup.password is required")
	}

	if cfg.Reboot.PauseCooldown < 0 {
		return fmt.Errorf("reboot.pause_cooldown must not be negative")
	}

	if cfg.Reboot.BootCooldown < 0 {
		return fmt.Errorf("reboot.boot_cooldown must not be negative")
	}

	if cfg.QBittorrent.Port < 1 || cfg.QBittorrent.Port > 65535 {
		return fmt.Errorf("qbittorrent.port must be between 1 and 65535")
	}

	return nil
}
