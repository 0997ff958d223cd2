package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"usbprobridge/internal/clientmqtt"
	"usbprobridge/internal/config"
	"usbprobridge/internal/logger"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "usbprobridge",
		Short: "Bridge Enttec USB Pro widgets to Art-Net and MQTT",
		Long: `usbprobridge drives Enttec USB Pro compatible DMX widgets over serial.

Input widgets forward every received universe to Art-Net and MQTT.
Output widgets take channel values from MQTT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/conf.toml", "Path to configuration file")

	rootCmd.AddCommand(
		runCmd(),
		paramsCmd(),
		portsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and builds the logger.
func loadConfig() (*config.Config, *logger.Log, error) {
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration file read error: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create a logger: %w", err)
	}
	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")
	return cfg, log, nil
}

// ConvertConfigClientMQTT преобразует структуры.
func ConvertConfigClientMQTT(cfg config.MQTTConf) clientmqtt.MQTTConf {
	return clientmqtt.MQTTConf{
		ClientID: cfg.ClientID,
		Schema:   "tcp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Qos:      cfg.Qos,
		Prefix:   cfg.Prefix,
	}
}
