package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAdmin(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.ResetBatchSize > maxResetBatchSize {
		return fmt.Errorf("store.reset_batch_size must be at most %d", maxResetBatchSize)
	}
	return nil
}

func (c *Config) validateAdmin() error {
	if c.Admin.PIN == "" {
		return errors.New("admin.pin must be set (or STAGEQUEUE_ADMIN_PIN)")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.SpreadsheetID == "" {
		return errors.New("archive.spreadsheet_id must be set when archive.enabled is true")
	}
	if c.Archive.CredentialsFile == "" {
		return errors.New("archive.credentials_file must be set when archive.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
