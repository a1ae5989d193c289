package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stagequeue/internal/apiclient"
	"stagequeue/internal/config"
	"stagequeue/internal/requests"
)

type globalFlags struct {
	config string
	api    string
	pin    string
	json   bool
}

type commandContext struct {
	flags *globalFlags

	// prompt reads one confirmation answer; swapped out in tests.
	prompt func(question string) (string, error)

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{
		flags:  flags,
		prompt: linerPrompt,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*apiclient.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := strings.TrimSpace(c.flags.api)
	if base == "" {
		base = cfg.APIBaseURL()
	}
	pin := strings.TrimSpace(c.flags.pin)
	if pin == "" {
		pin = cfg.Admin.PIN
	}
	return apiclient.New(base, apiclient.WithAdminPIN(pin)), nil
}

func (c *commandContext) withClient(fn func(*apiclient.Client) error) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	return wrapDaemonError(fn(client), c.flags.api)
}

// wrapDaemonError adds a hint when the daemon could not be reached.
func wrapDaemonError(err error, api string) error {
	if err == nil {
		return nil
	}
	var remote *apiclient.RemoteError
	if errors.As(err, &remote) {
		return err
	}
	if errors.Is(err, requests.ErrUnavailable) {
		if api == "" {
			api = "the configured api_bind"
		}
		return fmt.Errorf("%w (is stagequeued running at %s?)", err, api)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
