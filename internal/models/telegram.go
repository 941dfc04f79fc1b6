package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a reboot notification.
type TelegramMessage struct {
	Success    bool
	WorkflowID string
	Server     string
	Identifier string
	StartTime  time.Time
	Duration   time.Duration

	// Set when the workflow failed.
	FailedPhase     Phase
	LastCompleted   Phase
	TransfersPaused bool
	ResetAttempted  bool
	ErrorMessage    string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
