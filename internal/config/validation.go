package config

import (
	"fmt"
	"strings"

	"sigrelay/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Source.validate(); err != nil {
		return err
	}
	if err := c.Classifier.validate(); err != nil {
		return err
	}
	if err := c.Gateway.validate(); err != nil {
		return err
	}
	if err := c.Sweep.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	return nil
}

func (s *SourceConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "telegram", "scripted":
	default:
		return fmt.Errorf("source.provider must be telegram or scripted, got %q", s.Provider)
	}
	if s.ReconnectBaseSeconds > s.ReconnectMaxSeconds {
		return fmt.Errorf("source.reconnect_base_seconds (%d) exceeds reconnect_max_seconds (%d)",
			s.ReconnectBaseSeconds, s.ReconnectMaxSeconds)
	}
	return nil
}

func (c *ClassifierConfig) validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("classifier.model is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("classifier.base_url is required")
	}
	return nil
}

func (g *GatewayConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(g.Provider)) {
	case "mt5":
		if strings.TrimSpace(g.MT5.APIURL) == "" {
			return fmt.Errorf("gateway.mt5.api_url is required when gateway.provider=mt5")
		}
	case "binance":
		if strings.TrimSpace(g.Binance.APIKey) == "" || strings.TrimSpace(g.Binance.APISecret) == "" {
			return fmt.Errorf("gateway.binance requires api_key and api_secret")
		}
	default:
		return fmt.Errorf("gateway.provider must be mt5 or binance, got %q", g.Provider)
	}
	return nil
}

func (s *SweepConfig) validate() error {
	if _, ok := scheduler.ParseIntervalDuration(s.FastInterval); !ok {
		return fmt.Errorf("sweep.fast_interval invalid: %q", s.FastInterval)
	}
	if _, ok := scheduler.ParseIntervalDuration(s.SlowInterval); !ok {
		return fmt.Errorf("sweep.slow_interval invalid: %q", s.SlowInterval)
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.VolumeMin > t.VolumeMax {
		return fmt.Errorf("trading.volume_min (%v) exceeds trading.volume_max (%v)", t.VolumeMin, t.VolumeMax)
	}
	return nil
}
