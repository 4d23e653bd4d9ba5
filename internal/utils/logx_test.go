package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogxManager_SplitsLevels(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	lg := m.Logger("User_Bob")
	if m.Logger("User_Bob") != lg {
		t.Error("Expected the same logger for the same node")
	}
	lg.Info("message delivered")
	lg.Warn("broadcast failed")
	lg.Debug("duplicate dropped")
	m.Close()

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, "User_Bob", name))
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	if info := read("info.log"); !strings.Contains(info, "message delivered") || strings.Contains(info, "broadcast failed") {
		t.Errorf("unexpected info.log: %q", info)
	}
	if errLog := read("error.log"); !strings.Contains(errLog, "broadcast failed") {
		t.Errorf("unexpected error.log: %q", errLog)
	}
	if dbg := read("debug.log"); !strings.Contains(dbg, "duplicate dropped") {
		t.Errorf("unexpected debug.log: %q", dbg)
	}
}

func TestDefaultNodeName(t *testing.T) {
	name := DefaultNodeName()
	if !strings.HasPrefix(name, "User_") || len(name) != len("User_")+6 {
		t.Errorf("unexpected node name %q", name)
	}
	if NewUUID() == NewUUID() {
		t.Error("NewUUID returned the same id twice")
	}
}
