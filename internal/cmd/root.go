// Package cmd implements the driftguard command line.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/driftguard/internal/config"
)

// Version is set by the entry point.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "driftguard",
	Short: "Keep coding agents on task",
	Long: `driftguard coordinates coding-agent sessions: a focus state machine,
task checklists with mandatory intents, scope claims over file globs,
integrity hashing of claimed files, churn-based risk scores and a git-notes
audit trail. Run it as an MCP server (driftguard serve) or drive the
session directly from the command line.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute(version string) error {
	if version != "" {
		Version = version
	}
	rootCmd.Version = Version
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/driftguard/config.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "C", "", "project root (default is the current directory)")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Repeated executions in one process must not inherit merged settings.
	viper.Reset()
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/driftguard")
	}

	config.BindEnv(viper.GetViper())

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()

	// A project-level file overrides user settings.
	if root, err := projectRoot(rootCmd); err == nil {
		local := filepath.Join(root, config.LocalConfigFile)
		if f, err := os.Open(local); err == nil {
			viper.SetConfigType("yaml")
			_ = viper.MergeConfig(f)
			_ = f.Close()
		}
	}
}

// projectRoot resolves the --dir flag, defaulting to the working directory.
func projectRoot(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Root().PersistentFlags().GetString("dir")
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}
