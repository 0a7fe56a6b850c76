package main

import (
	"fmt"
	"os"

	"github.com/cuemby/itemstored/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information (set via ldflags during build)
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgFile string
	v       = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "itemstored",
	Short: "itemstored - a PIM storage and synchronization server",
	Long: `itemstored stores items, collections, tags, and relations for
a single writer process and keeps them in sync with the resources that
own them, over a local socket protocol and a set of subscriber
notification streams.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("itemstored version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default /etc/itemstored/itemstored.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the bbolt store and certificates")
	rootCmd.PersistentFlags().String("socket", "", "unix socket path for the client protocol")
	rootCmd.PersistentFlags().String("gateway-addr", "", "bind address for the resource gateway")
	rootCmd.PersistentFlags().String("metrics-addr", "", "bind address for /healthz and /metrics")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs as JSON")

	_ = v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = v.BindPFlag("socket_path", rootCmd.PersistentFlags().Lookup("socket"))
	_ = v.BindPFlag("gateway.bind_addr", rootCmd.PersistentFlags().Lookup("gateway-addr"))
	_ = v.BindPFlag("metrics_addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log-json"))

	cobra.OnInitialize(initConfigFile)
}

func initConfigFile() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("itemstored")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/itemstored")
		v.AddConfigPath(".")
	}
}

func initLogging(level string, jsonOutput bool) {
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}
