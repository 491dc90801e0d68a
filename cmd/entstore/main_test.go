package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/nerrad567/ent-store/internal/infrastructure/config"
	"github.com/nerrad567/ent-store/internal/propset"
	"github.com/nerrad567/ent-store/internal/snapshot"
	"github.com/nerrad567/ent-store/internal/store"
	"github.com/nerrad567/ent-store/internal/vehicle"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// writeTestConfig writes a config pointing at a fresh database in a temp dir
// and exports it through ENTSTORE_CONFIG.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "entstore.db")
	configPath := filepath.Join(tmpDir, "entstore.yaml")

	configContent := `
database:
  path: "` + dbPath + `"
  driver: sqlite
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: warn
  format: text
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("ENTSTORE_CONFIG", configPath)
	return dbPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := run(ctx, args, &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, err := runCommand(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

// seedStore opens the database directly and saves one entry per family.
func seedStore(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx,
		config.DatabaseConfig{Path: dbPath, Driver: config.DriverPure, WALMode: true, BusyTimeout: 5},
		store.WithJournal(journalSource),
	)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer st.Close()

	v := &vehicle.Vehicle{
		Model:     0xB779A091,
		PlateText: "ENT 001",
		Extras:    []vehicle.Extra{{ExtraID: 1, State: 1}},
		Mods:      []vehicle.Mod{{ModID: 22, State: 1, IsToggle: true}},
	}
	if _, err := st.Vehicles.Save(ctx, v, "Adder", snapshot.SlotUnset); err != nil {
		t.Fatalf("Vehicles.Save() error = %v", err)
	}

	items := []propset.PropInstance{
		{Model: 0x2E28CA22, Title: "ramp", Immovable: true},
		{Model: 0x2E28CA22, Title: "ramp", HasGravity: true},
	}
	if _, err := st.PropSets.Save(ctx, items, "Jumps", snapshot.SlotUnset); err != nil {
		t.Fatalf("PropSets.Save() error = %v", err)
	}
}

// TestRun_NoCommand verifies run rejects an empty command line.
func TestRun_NoCommand(t *testing.T) {
	if _, err := runCommand(t); !errors.Is(err, errUsage) {
		t.Errorf("run() error = %v, want errUsage", err)
	}
}

// TestRun_Help prints usage without touching the database.
func TestRun_Help(t *testing.T) {
	t.Setenv("ENTSTORE_CONFIG", "/nonexistent/path/config.yaml")

	out := mustRun(t, "help")
	if !strings.Contains(out, "Usage: entstore") {
		t.Errorf("help output missing usage line:\n%s", out)
	}
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ENTSTORE_CONFIG", "/nonexistent/path/config.yaml")

	if _, err := runCommand(t, "status"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ""
logging:
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("ENTSTORE_CONFIG", configPath)

	if _, err := runCommand(t, "status"); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_UnknownCommand verifies unknown commands are usage errors.
func TestRun_UnknownCommand(t *testing.T) {
	writeTestConfig(t)

	if _, err := runCommand(t, "frobnicate"); !errors.Is(err, errUsage) {
		t.Errorf("run() error = %v, want errUsage", err)
	}
}

func TestRun_Status(t *testing.T) {
	dbPath := writeTestConfig(t)

	out := mustRun(t, "status")
	if !strings.Contains(out, dbPath) {
		t.Errorf("status output missing database path:\n%s", out)
	}
	if !strings.Contains(out, "0001") {
		t.Errorf("status output missing first migration:\n%s", out)
	}
}

func TestRun_Migrate(t *testing.T) {
	writeTestConfig(t)

	// The first open applies everything, a second one nothing
	mustRun(t, "status")
	out := mustRun(t, "migrate")
	if !strings.Contains(out, "Applied 0 migration(s)") {
		t.Errorf("migrate output = %q", out)
	}

	out = mustRun(t, "migrate", "down")
	if !strings.Contains(out, "schema version is now") {
		t.Errorf("migrate down output = %q", out)
	}

	// Reopening brings the reverted migration back
	out = mustRun(t, "migrate")
	if !strings.Contains(out, "Applied 1 migration(s)") {
		t.Errorf("migrate after down output = %q", out)
	}
}

func TestRun_SettingsAndFlags(t *testing.T) {
	writeTestConfig(t)

	mustRun(t, "settings", "set", "hud_scale", "1.25")
	out := mustRun(t, "settings")
	if !strings.Contains(out, "hud_scale") || !strings.Contains(out, "1.25") {
		t.Errorf("settings output missing stored value:\n%s", out)
	}

	mustRun(t, "flags", "set", "god_mode", "true")
	out = mustRun(t, "flags", "get", "god_mode", "never_wanted")
	if !strings.Contains(out, "true") {
		t.Errorf("flags output missing stored flag:\n%s", out)
	}
	if !strings.Contains(out, "(unset)") {
		t.Errorf("flags output should mark missing flag as unset:\n%s", out)
	}

	if _, err := runCommand(t, "flags", "set", "god_mode", "maybe"); !errors.Is(err, errUsage) {
		t.Errorf("flags set with non-boolean error = %v, want errUsage", err)
	}
}

func TestRun_Families(t *testing.T) {
	dbPath := writeTestConfig(t)
	seedStore(t, dbPath)

	out := mustRun(t, "vehicles")
	if !strings.Contains(out, "Adder") || !strings.Contains(out, "0xB779A091") {
		t.Errorf("vehicles output:\n%s", out)
	}

	out = mustRun(t, "vehicles", "1")
	if !strings.Contains(out, "Extras (1)") || !strings.Contains(out, "Mods (1)") {
		t.Errorf("vehicle detail output:\n%s", out)
	}

	out = mustRun(t, "propsets", "1")
	if !strings.Contains(out, "2 instances") || !strings.Contains(out, "frozen") {
		t.Errorf("propset detail output:\n%s", out)
	}

	mustRun(t, "rename", "vehicle", "1", "Adder (race)")
	out = mustRun(t, "vehicles")
	if !strings.Contains(out, "Adder (race)") {
		t.Errorf("vehicles output after rename:\n%s", out)
	}

	mustRun(t, "clear", "propset", "1")
	out = mustRun(t, "propsets")
	if !strings.Contains(out, "Jumps") {
		t.Errorf("clear must keep the prop set:\n%s", out)
	}

	mustRun(t, "delete", "vehicle", "1")
	if _, err := runCommand(t, "vehicles", "1"); !errors.Is(err, errNotFound) {
		t.Errorf("vehicles 1 after delete error = %v, want errNotFound", err)
	}

	// Deleting an empty slot is not an error
	mustRun(t, "delete", "vehicle", "1")

	out = mustRun(t, "history", "vehicle")
	for _, action := range []string{"save", "rename", "delete"} {
		if !strings.Contains(out, action) {
			t.Errorf("history missing %q:\n%s", action, out)
		}
	}
}

func TestRun_SlotArguments(t *testing.T) {
	writeTestConfig(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown family", []string{"delete", "aircraft", "1"}, errUsage},
		{"unset slot", []string{"delete", "skin", "-1"}, snapshot.ErrInvalidSlot},
		{"bad slot", []string{"rename", "skin", "abc", "x"}, snapshot.ErrInvalidSlot},
		{"missing name", []string{"rename", "skin", "1"}, errUsage},
		{"too many slots", []string{"skins", "1", "2"}, errUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCommand(t, tt.args...); !errors.Is(err, tt.want) {
				t.Errorf("run(%v) error = %v, want %v", tt.args, err, tt.want)
			}
		})
	}
}

// TestRun_WatchRequiresMQTT verifies watch refuses to run without a broker.
func TestRun_WatchRequiresMQTT(t *testing.T) {
	writeTestConfig(t)

	if _, err := runCommand(t, "watch"); err == nil {
		t.Fatal("watch should fail when mqtt is disabled")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ENTSTORE_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("ENTSTORE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestLoadConfig_MissingDefault falls back to defaults plus environment.
func TestLoadConfig_MissingDefault(t *testing.T) {
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	t.Setenv("ENTSTORE_DATABASE_PATH", "/tmp/from-env.db")

	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want /tmp/from-env.db", cfg.Database.Path)
	}
}

func TestPropFlags(t *testing.T) {
	tests := []struct {
		p    propset.PropInstance
		want string
	}{
		{propset.PropInstance{}, "-"},
		{propset.PropInstance{Immovable: true}, "frozen"},
		{propset.PropInstance{Invincible: true, HasGravity: true}, "invincible,gravity"},
	}
	for _, tt := range tests {
		if got := propFlags(tt.p); got != tt.want {
			t.Errorf("propFlags(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
