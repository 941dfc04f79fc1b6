// Package models contains the data structures used throughout vserverctl.
package models

import "time"

// Config holds the complete configuration for a vserverctl invocation.
type Config struct {
	Netcup      NetcupConfig
	QBittorrent QBittorrentConfig
	Reboot      RebootSettings
	SSH         *SSHConfig      // nil if not configured
	Telegram    *TelegramConfig // nil if not configured
	Metrics     *MetricsConfig  // nil if not configured
	Events      *EventsConfig   // nil if not configured
}

// NetcupConfig holds the server control panel webservice credentials.
type NetcupConfig struct {
	LoginName string
	Password  string
	Endpoint  string
	Timeout   time.Duration
}

// QBittorrentConfig holds download client access settings shared by all servers.
type QBittorrentConfig struct {
	Scheme   string
	Port     int
	Username string // empty when the Web UI bypasses auth for this client
	Password string
	Timeout  time.Duration
	Hosts    map[string]string // nickname -> base URL override
}

// RebootSettings defines the dwell periods of the coordinated reboot.
type RebootSettings struct {
	PauseCooldown time.Duration // after pausing, before the reset
	BootCooldown  time.Duration // after the reset, before resuming
}

// MetricsConfig holds Prometheus textfile collector settings.
type MetricsConfig struct {
	TextfilePath string
}

// EventsConfig holds phase-transition event publishing settings.
type EventsConfig struct {
	NATSURL string
	Subject string
}
