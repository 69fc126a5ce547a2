package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/config"
	"github.com/steveyegge/treewatch/internal/inotify"
	"github.com/steveyegge/treewatch/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging the config file, TREEWATCH_
environment variables and flags.

Examples:
  treewatch config show
  treewatch config show --format toml
  TREEWATCH_BACKEND=fsnotify treewatch config show`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		data, err := cfg.Render(format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if used := v.ConfigFileUsed(); used != "" && ui.IsTerminal(os.Stdout) {
			fmt.Println(ui.RenderMuted("# from " + used))
		}
		os.Stdout.Write(data)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file with the current settings.

On a terminal, a short form asks for the common settings first. Otherwise
the effective configuration is written as is. A .toml path writes TOML,
anything else YAML.

Examples:
  treewatch config init                       # $XDG_CONFIG_HOME/treewatch/config.yaml
  treewatch config init --path .treewatch.yaml
  treewatch config init --path tw.toml --force`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		if path == "" {
			path = config.DefaultPath()
		}
		if path == "" {
			fmt.Fprintf(os.Stderr, "Error: no user config directory; pass --path\n")
			os.Exit(1)
		}
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
			os.Exit(1)
		}

		c := *cfg
		if ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout) {
			if err := promptConfig(&c); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if err := c.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := c.Write(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

// promptConfig asks for the settings most people change.
func promptConfig(c *config.Config) error {
	port := strconv.Itoa(c.Serve.Port)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Watch source").
				Options(huh.NewOptions(inotify.BackendAuto, inotify.BackendInotify, inotify.BackendFsnotify)...).
				Value(&c.Backend),
			huh.NewSelect[string]().
				Title("Output format").
				Options(huh.NewOptions(config.FormatText, config.FormatJSON, config.FormatYAML)...).
				Value(&c.Format),
			huh.NewConfirm().
				Title("List existing entries at startup?").
				Value(&c.Watched),
			huh.NewConfirm().
				Title("Record events to the journal?").
				Value(&c.Record),
			huh.NewInput().
				Title("Dashboard port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 || n > 65535 {
						return fmt.Errorf("enter a port between 0 and 65535")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("config prompt: %w", err)
	}
	c.Serve.Port, _ = strconv.Atoi(port)
	return nil
}

func init() {
	configShowCmd.Flags().String("format", "yaml", "Output format: yaml or toml")
	_ = configShowCmd.Flags().SetAnnotation("format", unboundFlag, []string{"true"})
	configInitCmd.Flags().String("path", "", "File to write (default $XDG_CONFIG_HOME/treewatch/config.yaml)")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
