package main

import (
	"strings"

	"darkroom/internal/config"
)

// commandContext resolves daemon address and token lazily so commands that
// never talk to the daemon do not require a config file.
type commandContext struct {
	addrFlag   *string
	configFlag *string

	cfg    *config.Config
	client *apiClient
}

func newCommandContext(addrFlag, configFlag *string) *commandContext {
	return &commandContext{addrFlag: addrFlag, configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureClient() (*apiClient, error) {
	if c.client != nil {
		return c.client, nil
	}

	addr := strings.TrimSpace(*c.addrFlag)
	token := ""
	if cfg, err := c.ensureConfig(); err == nil {
		if addr == "" {
			addr = cfg.Paths.APIBind
		}
		token = cfg.Paths.APIToken
	} else if addr == "" {
		return nil, err
	}

	c.client = newAPIClient(addr, token)
	return c.client, nil
}
