package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeAdmin()
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	c.normalizePlayer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStore() {
	if c.Store.SubmitTimeoutSeconds <= 0 {
		c.Store.SubmitTimeoutSeconds = defaultSubmitTimeoutSeconds
	}
	if c.Store.ResetBatchSize <= 0 {
		c.Store.ResetBatchSize = defaultResetBatchSize
	}
	if c.Store.ResetTicketTTLSeconds <= 0 {
		c.Store.ResetTicketTTLSeconds = defaultResetTicketTTLSeconds
	}
}

func (c *Config) normalizeAdmin() {
	if value, ok := os.LookupEnv("STAGEQUEUE_ADMIN_PIN"); ok && strings.TrimSpace(value) != "" {
		c.Admin.PIN = value
	}
	c.Admin.PIN = strings.TrimSpace(c.Admin.PIN)
}

func (c *Config) normalizeArchive() error {
	c.Archive.SpreadsheetID = strings.TrimSpace(c.Archive.SpreadsheetID)
	c.Archive.SheetName = strings.TrimSpace(c.Archive.SheetName)
	if c.Archive.SheetName == "" {
		c.Archive.SheetName = defaultArchiveSheetName
	}
	c.Archive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Archive.BaseURL), "/")
	if c.Archive.BaseURL == "" {
		c.Archive.BaseURL = defaultArchiveBaseURL
	}
	if c.Archive.CredentialsFile != "" {
		var err error
		if c.Archive.CredentialsFile, err = expandPath(strings.TrimSpace(c.Archive.CredentialsFile)); err != nil {
			return fmt.Errorf("archive.credentials_file: %w", err)
		}
	}
	if c.Archive.MaxAttempts <= 0 {
		c.Archive.MaxAttempts = defaultArchiveMaxAttempts
	}
	if c.Archive.RatePerMinute <= 0 {
		c.Archive.RatePerMinute = defaultArchiveRatePerMinute
	}
	if c.Archive.QueueSize <= 0 {
		c.Archive.QueueSize = defaultArchiveQueueSize
	}
	if c.Archive.RequestTimeoutSeconds <= 0 {
		c.Archive.RequestTimeoutSeconds = defaultArchiveTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizePlayer() {
	c.Player.OpenCommand = strings.TrimSpace(c.Player.OpenCommand)
	if c.Player.TimeoutSeconds <= 0 {
		c.Player.TimeoutSeconds = defaultPlayerTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
