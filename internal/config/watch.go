package config

import (
	"fmt"
	"strings"

	"sigrelay/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-reads the config file on filesystem change and re-applies the
// runtime-adjustable fields (currently the log level). Structural fields
// require a restart and are ignored here.
func Watch(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config watch requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config for watch failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		level := v.GetString("app.log_level")
		if strings.TrimSpace(level) != "" {
			logger.SetLevel(level)
			logger.Infof("config reload: log level set to %s", level)
		}
	})
	v.WatchConfig()
	return nil
}
