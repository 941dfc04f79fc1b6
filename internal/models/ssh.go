package models

import "time"

// SSHConfig holds the settings used to probe servers over SSH.
type SSHConfig struct {
	Username   string
	Port       int
	KeyPath    string
	PrivateKey []byte // loaded from KeyPath when empty
	Timeout    time.Duration
}

// SSHResult holds the result of an SSH probe.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
