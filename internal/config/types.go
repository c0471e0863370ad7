package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration carrier.
type Config struct {
	App        AppConfig        `toml:"app"`
	Server     ServerConfig     `toml:"server"`
	Source     SourceConfig     `toml:"source"`
	Classifier ClassifierConfig `toml:"classifier"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Sweep      SweepConfig      `toml:"sweep"`
	Store      StoreConfig      `toml:"store"`
	Trading    TradingConfig    `toml:"trading"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	LogPath        string `toml:"log_path"`
	TranscriptPath string `toml:"transcript_path"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SourceConfig configures the message source adapter.
type SourceConfig struct {
	Provider             string `toml:"provider"`
	BotToken             string `toml:"bot_token"`
	BacklogLimit         int    `toml:"backlog_limit"`
	ReconnectMaxAttempts int    `toml:"reconnect_max_attempts"`
	ReconnectBaseSeconds int    `toml:"reconnect_base_seconds"`
	ReconnectMaxSeconds  int    `toml:"reconnect_max_seconds"`
}

// ClassifierConfig configures the chat-completion classifier client.
type ClassifierConfig struct {
	BaseURL                string            `toml:"base_url"`
	APIKey                 string            `toml:"api_key"`
	Model                  string            `toml:"model"`
	TimeoutSeconds         int               `toml:"timeout_seconds"`
	MaxRetries             int               `toml:"max_retries"`
	ExtraHeaders           map[string]string `toml:"extra_headers"`
	BreakerThreshold       int               `toml:"breaker_threshold"`
	BreakerCooldownSeconds int               `toml:"breaker_cooldown_seconds"`
}

// GatewayConfig selects and configures the execution gateway.
type GatewayConfig struct {
	Provider string        `toml:"provider"`
	MT5      MT5Config     `toml:"mt5"`
	Binance  BinanceConfig `toml:"binance"`
}

// MT5Config configures the REST bridge gateway.
type MT5Config struct {
	APIURL             string `toml:"api_url"`
	APIToken           string `toml:"api_token"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// BinanceConfig configures the binance futures gateway.
type BinanceConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Testnet   bool   `toml:"testnet"`
}

// SweepConfig controls the periodic reconciliation intervals.
type SweepConfig struct {
	FastInterval        string   `toml:"fast_interval"`
	SlowInterval        string   `toml:"slow_interval"`
	HistoryLookbackDays int      `toml:"history_lookback_days"`
	QuoteSymbols        []string `toml:"quote_symbols"`
}

// HistoryLookback returns the trade-history window as a duration.
func (s SweepConfig) HistoryLookback() time.Duration {
	days := s.HistoryLookbackDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

type StoreConfig struct {
	SettingsDB string `toml:"settings_db"`
}

// TradingConfig bounds order volumes accepted from signals and commands.
type TradingConfig struct {
	VolumeStep float64 `toml:"volume_step"`
	VolumeMin  float64 `toml:"volume_min"`
	VolumeMax  float64 `toml:"volume_max"`
}

// keySet tracks the field paths explicitly set in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
