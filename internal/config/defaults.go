package config

const (
	defaultConfigPath           = "~/.config/flowops/config.toml"
	defaultDataDir              = "~/.local/share/flowops"
	defaultLogDir               = "~/.local/share/flowops/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNotifyTimeout        = 10
	defaultNotifyQueueSize      = 256
	defaultNotifyMaxAttempts    = 3
	defaultEventLogName         = "events.jsonl"
	defaultDirectoryTimeout     = 5
	defaultStaleScanInterval    = 24 * 60 * 60
	defaultStaleThreshold       = 48 * 60 * 60
	defaultStalePlaceholderMail = "no-reply@opsflow.com"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyTimeout,
			EventLogEnabled: true,
			QueueSize:       defaultNotifyQueueSize,
			MaxAttempts:     defaultNotifyMaxAttempts,
			TaskAssigned:    true,
			TaskCompleted:   true,
			HotfixAdded:     true,
			StaleDetected:   true,
		},
		Directory: Directory{
			RequestTimeout: defaultDirectoryTimeout,
		},
		Stale: Stale{
			Enabled:          true,
			ScanInterval:     defaultStaleScanInterval,
			Threshold:        defaultStaleThreshold,
			PlaceholderEmail: defaultStalePlaceholderMail,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
