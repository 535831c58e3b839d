package geof

import (
	"fmt"
	"os"

	"github.com/chrisberkhout/restful-geof/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var cfg *config.Config
var rootCmd = &cobra.Command{
	Use:   "geof",
	Short: "geof serves PostGIS tables as GeoJSON",
	Long: `geof is a read-only HTTP interface to PostgreSQL/PostGIS tables.
Lookups are expressed in the URL path and answered with GeoJSON FeatureCollections.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/geof.yaml)")
	pf.StringP("log-level", "L", "info", "log at this level (debug, info, warn, error, none)")
	rootCmd.Flags().BoolP("version", "v", false, "Print the version number")

	viper.BindPFlag("logLevel", pf.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, versionCmd)
}

// loadConfig reads the configuration once flags are parsed.
func loadConfig() error {
	var err error
	cfg, err = config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
