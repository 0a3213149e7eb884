package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jnwerner/vouch/internal/buildinfo"
	"github.com/jnwerner/vouch/internal/logging"
)

// global flags
var configPath string

const (
	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"
)

var rootCmd = &cobra.Command{
	Use:   "vouch",
	Short: fmt.Sprintf("Vouch OAuth provider core (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `Vouch is an embeddable OAuth 1.0a provider core: consumer and token
registries, replay-nonce and callback checks, and scope-based access
control over a pluggable key-value store.

This CLI administers a deployment's store directly (register consumers,
inspect and revoke tokens). It speaks no network protocol.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Options{
			Level:   viper.GetString(LogLevelKey),
			Format:  viper.GetString(LogFormatKey),
			NoColor: viper.GetBool(LogNoColorKey),
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

// bindLogFlags registers the logging flags on the given set and binds
// them to their viper keys.
func bindLogFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, flags.Lookup("log-level"))

	flags.String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(LogFormatKey, flags.Lookup("log-format"))

	flags.Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(LogNoColorKey, flags.Lookup("no-color"))
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Provider configuration file (default is ./vouch.yaml)")

	bindLogFlags(rootCmd.PersistentFlags())

	viper.SetEnvPrefix("VOUCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
