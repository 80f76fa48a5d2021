package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/whitekid/goxp/log"

	"hamboard/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "hamboard",
	Short:        "amateur radio message board with client certificate login",
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./hamboard.yaml)")
	rootCmd.PersistentFlags().String("ca-dir", config.CADir(), "CA directory")
	rootCmd.PersistentFlags().String("backend", config.Backend(), "toolkit backend: openssl or native")
	config.BindFlag(config.KeyCADir, rootCmd.PersistentFlags().Lookup("ca-dir"))
	config.BindFlag(config.KeyBackend, rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer)
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hamboard")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/hamboard")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Errorf("config: %v", err)
		}
		return
	}

	log.Debugf("config file: %s", viper.ConfigFileUsed())
}
