package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/treewatch/internal/config"
	"github.com/steveyegge/treewatch/internal/events"
	"github.com/steveyegge/treewatch/internal/journal"
	"github.com/steveyegge/treewatch/internal/tree"
	"github.com/steveyegge/treewatch/internal/ui"
)

// printer writes events and journal entries in one of the configured formats.
// JSON is one object per line; YAML is a stream of documents.
type printer struct {
	w      io.Writer
	format string
	json   *json.Encoder
	yaml   *yaml.Encoder
}

func newPrinter(w io.Writer, format string) *printer {
	p := &printer{w: w, format: format}
	switch format {
	case config.FormatJSON:
		p.json = json.NewEncoder(w)
	case config.FormatYAML:
		p.yaml = yaml.NewEncoder(w)
	}
	return p
}

func (p *printer) encode(v any) error {
	switch {
	case p.json != nil:
		return p.json.Encode(v)
	case p.yaml != nil:
		return p.yaml.Encode(v)
	}
	return fmt.Errorf("format %q cannot encode values", p.format)
}

// Event writes one event.
func (p *printer) Event(ev events.Event) error {
	if p.format != config.FormatText {
		return p.encode(ev)
	}
	_, err := fmt.Fprintf(p.w, "%s %s\n", ui.RenderKind(ev.Kind), formatPaths(ev))
	return err
}

// Entry writes one journal entry.
func (p *printer) Entry(e journal.Entry) error {
	if p.format != config.FormatText {
		return p.encode(e)
	}
	_, err := fmt.Fprintf(p.w, "%s  %s %s\n",
		ui.RenderMuted(e.RecordedAt.Local().Format("2006-01-02 15:04:05")),
		ui.RenderKind(e.Event.Kind), formatPaths(e.Event))
	return err
}

// Close flushes a YAML stream.
func (p *printer) Close() error {
	if p.yaml != nil {
		return p.yaml.Close()
	}
	return nil
}

func formatPaths(ev events.Event) string {
	if ev.Kind.IsMove() {
		return ev.Path + " -> " + ev.NewPath
	}
	return ev.Path
}

// selection decides which dispatched events are printed. Watched kinds are
// always subscribed so the initial scan never shows up as created; they are
// printed only when asked for.
type selection struct {
	kinds   map[events.Kind]bool
	watched bool
}

func newSelection(kinds []events.Kind, watched bool) selection {
	s := selection{kinds: make(map[events.Kind]bool), watched: watched}
	for _, k := range kinds {
		s.kinds[k] = true
		if k.Action() == events.Watched {
			s.watched = true
		}
	}
	return s
}

// Subscribed returns the kinds to register handlers for.
func (s selection) Subscribed() []events.Kind {
	if len(s.kinds) == 0 {
		return events.AllKinds()
	}
	out := []events.Kind{events.FileWatched, events.DirWatched}
	for _, k := range events.AllKinds() {
		if s.kinds[k] && k.Action() != events.Watched {
			out = append(out, k)
		}
	}
	return out
}

// Wants reports whether k should be printed.
func (s selection) Wants(k events.Kind) bool {
	if k.Action() == events.Watched {
		return s.watched && (len(s.kinds) == 0 || s.kinds[k])
	}
	return len(s.kinds) == 0 || s.kinds[k]
}

// parseWhen parses an absolute or relative time: RFC 3339, a Go duration
// meaning "that long ago" ("90m"), or natural language ("2 hours ago",
// "yesterday").
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return r.Time, nil
}

// parseKinds parses kind names, accepting comma-separated lists.
func parseKinds(names []string) ([]events.Kind, error) {
	var kinds []events.Kind
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := events.ParseKind(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// summarize describes the watched entries for the status line, for example
// "3 directories and 12 files".
func summarize(walk func(func(tree.Node) bool)) string {
	var dirs, files int
	walk(func(n tree.Node) bool {
		if n.IsDir {
			dirs++
		} else {
			files++
		}
		return true
	})
	return fmt.Sprintf("%s and %s", plural(dirs, "directory", "directories"), plural(files, "file", "files"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
