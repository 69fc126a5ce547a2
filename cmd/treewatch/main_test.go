package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyegge/treewatch/internal/config"
)

func TestLoggersShareLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treewatch.log")
	openLog(config.LogConfig{File: path, MaxSizeMB: 1})
	t.Cleanup(closeLog)

	watcherLog := newLogger("[watcher] ")
	dashboardLog := newLogger("[dashboard] ")
	if watcherLog.Writer() != dashboardLog.Writer() {
		t.Fatal("newLogger() opened a second log writer")
	}
	if _, ok := watcherLog.Writer().(*lumberjack.Logger); !ok {
		t.Fatalf("log writer = %T, want *lumberjack.Logger", watcherLog.Writer())
	}

	watcherLog.Print("started")
	dashboardLog.Print("listening")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	for _, want := range []string{"[watcher] ", "started", "[dashboard] ", "listening"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q:\n%s", want, data)
		}
	}
	if logOut != os.Stderr {
		t.Errorf("closeLog() left logOut = %T", logOut)
	}
}

func TestOpenLogWithoutFileUsesStderr(t *testing.T) {
	openLog(config.LogConfig{})
	t.Cleanup(closeLog)
	if got := newLogger("[x] ").Writer(); got != os.Stderr {
		t.Errorf("log writer = %T, want stderr", got)
	}
}
