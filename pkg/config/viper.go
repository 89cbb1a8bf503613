// Package config initializes the process-wide Viper instance the CLI reads
// its settings from: a config file, URLSEC_* environment variables and
// command-line flags bound by the commands.
package config

import (
	"errors"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	appconfig "github.com/JakeFAU/urlsec-blocklist/internal/config"
	"github.com/JakeFAU/urlsec-blocklist/internal/logging"
)

// InitConfig prepares the global Viper instance. When cfgFile is empty the
// file "config.*" is searched for in the working directory,
// /etc/urlsec-blocklist/ and $HOME/.urlsec-blocklist. A missing file is not
// an error; defaults and the environment still apply.
func InitConfig(cfgFile string) {
	v := viper.GetViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/urlsec-blocklist/")
		v.AddConfigPath("$HOME/.urlsec-blocklist")
	}

	appconfig.SetDefaults(v)
	appconfig.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logging.L.Debug("Config file not found; using defaults and environment variables.")
			return
		}
		logging.L.Error("Error reading config file", zap.Error(err))
		return
	}
	logging.L.Info("Using config file", zap.String("path", v.ConfigFileUsed()))
}
