package config

import (
	"strings"
)

const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultServerAddr        = ":8090"
	defaultSourceProvider    = "telegram"
	defaultBacklogLimit      = 50
	defaultReconnectAttempts = 10
	defaultReconnectBaseSecs = 2
	defaultReconnectMaxSecs  = 60
	defaultClassifierURL     = "https://api.openai.com/v1"
	defaultClassifierTimeout = 45
	defaultClassifierRetries = 2
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 120
	defaultGatewayProvider   = "mt5"
	defaultMT5Timeout        = 15
	defaultFastInterval      = "5s"
	defaultSlowInterval      = "5m"
	defaultHistoryLookback   = 7
	defaultSettingsDB        = "data/settings.db"
	defaultVolumeStep        = 0.01
	defaultVolumeMin         = 0.01
	defaultVolumeMax         = 100
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Server.applyDefaults(keys)
	c.Source.applyDefaults(keys)
	c.Classifier.applyDefaults(keys)
	c.Gateway.applyDefaults(keys)
	c.Sweep.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("server.addr", &s.Addr, defaultServerAddr),
	)
}

func (s *SourceConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("source.provider", &s.Provider, defaultSourceProvider),
		intFieldDefault("source.backlog_limit", &s.BacklogLimit, defaultBacklogLimit),
		intFieldDefault("source.reconnect_max_attempts", &s.ReconnectMaxAttempts, defaultReconnectAttempts),
		intFieldDefault("source.reconnect_base_seconds", &s.ReconnectBaseSeconds, defaultReconnectBaseSecs),
		intFieldDefault("source.reconnect_max_seconds", &s.ReconnectMaxSeconds, defaultReconnectMaxSecs),
	)
}

func (c *ClassifierConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("classifier.base_url", &c.BaseURL, defaultClassifierURL),
		intFieldDefault("classifier.timeout_seconds", &c.TimeoutSeconds, defaultClassifierTimeout),
		intFieldDefault("classifier.max_retries", &c.MaxRetries, defaultClassifierRetries),
		intFieldDefault("classifier.breaker_threshold", &c.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("classifier.breaker_cooldown_seconds", &c.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (g *GatewayConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("gateway.provider", &g.Provider, defaultGatewayProvider),
		intFieldDefault("gateway.mt5.timeout_seconds", &g.MT5.TimeoutSeconds, defaultMT5Timeout),
	)
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sweep.fast_interval", &s.FastInterval, defaultFastInterval),
		stringFieldDefault("sweep.slow_interval", &s.SlowInterval, defaultSlowInterval),
		intFieldDefault("sweep.history_lookback_days", &s.HistoryLookbackDays, defaultHistoryLookback),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.settings_db", &s.SettingsDB, defaultSettingsDB),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("trading.volume_step", &t.VolumeStep, defaultVolumeStep),
		floatFieldDefault("trading.volume_min", &t.VolumeMin, defaultVolumeMin),
		floatFieldDefault("trading.volume_max", &t.VolumeMax, defaultVolumeMax),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
