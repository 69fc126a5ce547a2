// Command treewatch watches directory trees and reports lifecycle events.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyegge/treewatch/internal/config"
	"github.com/steveyegge/treewatch/internal/ui"
)

var (
	cfgFile string
	cfg     *config.Config
	v       *viper.Viper

	// logOut is shared by every logger so a rotating log file has one writer.
	logOut io.Writer = os.Stderr
)

// flagKeys maps command-line flags to config keys. Flags that a command does
// not define are skipped when binding.
var flagKeys = map[string]string{
	"backend":  "backend",
	"format":   "format",
	"watched":  "watched",
	"only":     "only",
	"journal":  "journal",
	"record":   "record",
	"verbose":  "verbose",
	"port":     "serve.port",
	"log-file": "log.file",
}

// unboundFlag marks a flag that shares a name with a config key but means
// something else for its command.
const unboundFlag = "treewatch_unbound"

var rootCmd = &cobra.Command{
	Use:   "treewatch",
	Short: "Watch directory trees and report file lifecycle events",
	Long: `treewatch watches files and directory trees and reports a normalized
stream of lifecycle events: watched, created, updated, modified, moved,
deleted and gone, each scoped to a file or a directory.

Configuration is read from --config, else $XDG_CONFIG_HOME/treewatch/config.yaml,
else ./.treewatch.yaml. Any key can be overridden with a TREEWATCH_ environment
variable (TREEWATCH_SERVE_PORT=9000) or a flag.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if v, err = config.New(cfgFile); err != nil {
			return err
		}
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if _, local := f.Annotations[unboundFlag]; local {
					continue
				}
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind --%s: %w", name, err)
				}
			}
		}
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		openLog(cfg.Log)
		if !ui.IsTerminal(os.Stdout) {
			ui.DisableColor()
		}
		return nil
	},
}

// openLog points logOut at the destination configured by the log.* keys.
func openLog(l config.LogConfig) {
	closeLog()
	logOut = l.Writer(os.Stderr)
}

// closeLog closes a rotating log file opened by openLog.
func closeLog() {
	if f, ok := logOut.(*lumberjack.Logger); ok {
		f.Close()
	}
	logOut = os.Stderr
}

// newLogger returns a prefixed logger over the shared log destination.
func newLogger(prefix string) *log.Logger {
	return log.New(logOut, prefix, log.LstdFlags)
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "watch", Title: "Watching:"},
		&cobra.Group{ID: "journal", Title: "Journal:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/treewatch/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every raw notification and event")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotating file instead of stderr")
}

func main() {
	err := rootCmd.Execute()
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
