package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/tabkeeper/internal/appconfig"
	"pkt.systems/tabkeeper/internal/persist"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

func testSession() schema.Session {
	return schema.Session{Windows: []schema.WindowSnapshot{
		{
			VirtualDesktop: schema.NoVirtualDesktop,
			CurrentTab:     1,
			Tabs: []schema.TabRecord{
				{Title: "Alpha", URL: "https://a.example/", ZoomLevel: 6},
				{Title: "Beta", URL: "https://b.example/", IsPinned: true, ZoomLevel: 8},
			},
		},
	}}
}

// writeConfig writes a config whose state lives in dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf("config_version: %d\nstate_dir: %s\nsession:\n  file: session.dat\n", appconfig.CurrentConfigVersion, dir)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func saveSession(t *testing.T, path string, session schema.Session) {
	t.Helper()
	store, err := persist.NewStore(persist.Options{Path: path, DefaultZoomLevel: schema.DefaultZoomLevel})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Save(session); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestInspectListsTabs(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	saveSession(t, filepath.Join(dir, "session.dat"), testSession())

	out, err := execute(t, "-c", cfg, "inspect")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"https://a.example/", "https://b.example/", "120%", "1 windows, 2 tabs"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	saveSession(t, filepath.Join(dir, "session.dat"), testSession())

	out, err := execute(t, "-c", cfg, "inspect", "--json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, `"current_tab": 1`) || !strings.Contains(out, `"title": "Beta"`) {
		t.Fatalf("unexpected json output:\n%s", out)
	}
}

func TestInspectEmptySession(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	out, err := execute(t, "-c", cfg, "inspect")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "no saved session") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExportLegacyThenMigrate(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	sessionPath := filepath.Join(dir, "session.dat")
	saveSession(t, sessionPath, testSession())

	exported := filepath.Join(dir, "export.dat")
	if _, err := execute(t, "-c", cfg, "export", "--format-version", "3", "-o", exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if version, _ := sessioncodec.PeekVersion(raw); version != sessioncodec.Version3 {
		t.Fatalf("expected version 3 export, got %#x", version)
	}

	if err := os.Rename(exported, sessionPath); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := execute(t, "-c", cfg, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(sessionPath + persist.BackupSuffix); err != nil {
		t.Fatalf("expected backup: %v", err)
	}
	raw, err = os.ReadFile(sessionPath)
	if err != nil {
		t.Fatalf("read migrated: %v", err)
	}
	if version, _ := sessioncodec.PeekVersion(raw); version != sessioncodec.CurrentVersion {
		t.Fatalf("expected current version after migrate, got %#x", version)
	}
}

func TestExportRejectsUnknownVersion(t *testing.T) {
	if _, err := exportVersion(2); !errors.Is(err, schema.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestConfigInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := execute(t, "-c", path, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.Startup != appconfig.StartupRestore {
		t.Fatalf("unexpected startup %q", cfg.Session.Startup)
	}
	if _, err := execute(t, "-c", path, "config", "init"); err == nil {
		t.Fatalf("expected second init without --force to fail")
	}
}

func TestVersionPrintsModule(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "tabkeeper") {
		t.Fatalf("unexpected version output %q", out)
	}
}
