package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/treewatch/internal/config"
	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/ui"
)

// kindInfo describes one event kind for 'treewatch kinds'.
type kindInfo struct {
	Kind   string `json:"kind" yaml:"kind"`
	Scope  string `json:"scope" yaml:"scope"`
	Action string `json:"action" yaml:"action"`
	About  string `json:"about" yaml:"about"`
}

var actionAbout = map[events.Action]string{
	events.Watched:  "found while registering the initial paths",
	events.Created:  "appeared after the watch started",
	events.Updated:  "metadata changed (permissions, ownership, links)",
	events.Modified: "content written",
	events.Moved:    "renamed within the watched tree (old and new path)",
	events.Deleted:  "removed",
	events.Gone:     "watch lost without a deletion (moved out, unmounted)",
}

func describeKinds() []kindInfo {
	var out []kindInfo
	for _, k := range events.AllKinds() {
		scope := "file"
		if k.IsDir() {
			scope = "dir"
		}
		out = append(out, kindInfo{
			Kind:   k.String(),
			Scope:  scope,
			Action: k.Action().String(),
			About:  actionAbout[k.Action()],
		})
	}
	return out
}

var kindsCmd = &cobra.Command{
	Use:     "kinds",
	GroupID: "setup",
	Short:   "List event kinds accepted by --only and --kind",
	Run: func(cmd *cobra.Command, args []string) {
		out := newPrinter(os.Stdout, cfg.Format)
		defer out.Close()

		for i, info := range describeKinds() {
			if cfg.Format != config.FormatText {
				if err := out.encode(info); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
					os.Exit(1)
				}
				continue
			}
			fmt.Printf("%s %s\n", ui.RenderKind(events.AllKinds()[i]), ui.RenderMuted(info.About))
		}
	},
}

func init() {
	kindsCmd.Flags().StringP("format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(kindsCmd)
}
