// Package config loads itemstored's runtime settings through viper:
// a config file, environment variables, and command-line flags layered
// in that order of precedence under a cobra root command.
package config
