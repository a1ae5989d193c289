package config

const (
	defaultConfigPath            = "~/.config/stagequeue/config.toml"
	defaultDataDir               = "~/.local/share/stagequeue"
	defaultLogDir                = "~/.local/share/stagequeue/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultSubmitTimeoutSeconds  = 10
	defaultResetBatchSize        = 400
	maxResetBatchSize            = 400
	defaultResetTicketTTLSeconds = 120
	defaultAdminPIN              = "1234"
	defaultArchiveSheetName      = "Requests"
	defaultArchiveBaseURL        = "https://sheets.googleapis.com/v4/spreadsheets"
	defaultArchiveMaxAttempts    = 3
	defaultArchiveRatePerMinute  = 60
	defaultArchiveQueueSize      = 256
	defaultArchiveTimeoutSeconds = 15
	defaultPlayerTimeoutSeconds  = 5
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			SubmitTimeoutSeconds:  defaultSubmitTimeoutSeconds,
			ResetBatchSize:        defaultResetBatchSize,
			ResetTicketTTLSeconds: defaultResetTicketTTLSeconds,
		},
		Admin: Admin{
			PIN: defaultAdminPIN,
		},
		Archive: Archive{
			SheetName:             defaultArchiveSheetName,
			BaseURL:               defaultArchiveBaseURL,
			MaxAttempts:           defaultArchiveMaxAttempts,
			RatePerMinute:         defaultArchiveRatePerMinute,
			QueueSize:             defaultArchiveQueueSize,
			RequestTimeoutSeconds: defaultArchiveTimeoutSeconds,
		},
		Player: Player{
			TimeoutSeconds: defaultPlayerTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
