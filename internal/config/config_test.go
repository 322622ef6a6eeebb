package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// testOptions mirrors the shape of the server options.
type testOptions struct {
	Config string `help:"Config file path"`

	Port          int           `toml:"server.port" env:"PORT"`
	CamerasFile   string        `toml:"cameras.file" env:"CAMERAS_FILE"`
	ProbeTimeout  time.Duration `toml:"probe.timeout" env:"PROBE_TIMEOUT"`
	PlayerForce   bool          `toml:"player.force_tcp" env:"PLAYER_FORCE_TCP"`
	AllowOrigins  []string      `toml:"server.allow_origins" env:"ALLOW_ORIGINS"`
	LoggingLevel  string        `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingPlayer string        `toml:"logging.player" env:"LOGGING_PLAYER"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[server]
port = 8090
allow_origins = ["http://localhost:5173", "http://viewer.lan"]

[cameras]
file = "/var/lib/camview/cameras.toml"

[probe]
timeout = "3s"

[player]
force_tcp = true

[logging]
level = "info"
player = "debug"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, sampleConfig)}

	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Port != 8090 {
		t.Errorf("Port = %d", opts.Port)
	}
	if opts.CamerasFile != "/var/lib/camview/cameras.toml" {
		t.Errorf("CamerasFile = %q", opts.CamerasFile)
	}
	if opts.ProbeTimeout != 3*time.Second {
		t.Errorf("ProbeTimeout = %v", opts.ProbeTimeout)
	}
	if !opts.PlayerForce {
		t.Error("PlayerForce not set")
	}
	if want := []string{"http://localhost:5173", "http://viewer.lan"}; !reflect.DeepEqual(opts.AllowOrigins, want) {
		t.Errorf("AllowOrigins = %v", opts.AllowOrigins)
	}
	if opts.LoggingPlayer != "debug" {
		t.Errorf("LoggingPlayer = %q", opts.LoggingPlayer)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("CAMVIEW_PORT", "9000")
	t.Setenv("CAMVIEW_PROBE_TIMEOUT", "750ms")
	t.Setenv("CAMVIEW_PLAYER_FORCE_TCP", "false")
	t.Setenv("CAMVIEW_ALLOW_ORIGINS", " a , b ")

	opts := &testOptions{Config: writeConfig(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Port != 9000 {
		t.Errorf("Port = %d, want env value", opts.Port)
	}
	if opts.ProbeTimeout != 750*time.Millisecond {
		t.Errorf("ProbeTimeout = %v", opts.ProbeTimeout)
	}
	if opts.PlayerForce {
		t.Error("PlayerForce should be overridden to false")
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(opts.AllowOrigins, want) {
		t.Errorf("AllowOrigins = %v", opts.AllowOrigins)
	}
	if opts.CamerasFile != "/var/lib/camview/cameras.toml" {
		t.Errorf("CamerasFile = %q, want TOML value", opts.CamerasFile)
	}
}

func TestLoadConfigCLIWins(t *testing.T) {
	t.Setenv("CAMVIEW_PORT", "9000")

	cmd := &cobra.Command{Use: "test"}
	port := cmd.Flags().Int("port", 8090, "")
	cmd.Flags().Duration("probe-timeout", 5*time.Second, "")
	if err := cmd.Flags().Parse([]string{"--port", "7000"}); err != nil {
		t.Fatal(err)
	}

	opts := &testOptions{Config: writeConfig(t, sampleConfig), Port: *port}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Port != 7000 {
		t.Errorf("Port = %d, want CLI value", opts.Port)
	}
	if opts.ProbeTimeout != 3*time.Second {
		t.Errorf("ProbeTimeout = %v, unchanged flag should not block TOML", opts.ProbeTimeout)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "missing.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("defaults changed: %d", opts.Port)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, "[server\nport = ")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigReportsBadValues(t *testing.T) {
	t.Setenv("CAMVIEW_PLAYER_FORCE_TCP", "sometimes")

	opts := &testOptions{Config: writeConfig(t, "[server]\nport = 8090\n[probe]\ntimeout = \"soon\"\n"), ProbeTimeout: 5 * time.Second}
	err := LoadConfig(opts, nil)
	if err == nil {
		t.Fatal("expected error for unparsable values")
	}
	for _, key := range []string{"probe.timeout", "CAMVIEW_PLAYER_FORCE_TCP"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, valid values should still apply", opts.Port)
	}
	if opts.ProbeTimeout != 5*time.Second {
		t.Errorf("ProbeTimeout = %v, want default kept", opts.ProbeTimeout)
	}
}

func TestAssign(t *testing.T) {
	var s struct {
		D     time.Duration
		N     int
		B     bool
		Name  string
		Items []string
	}
	v := reflect.ValueOf(&s).Elem()

	tests := []struct {
		name    string
		field   string
		raw     any
		want    any
		wantErr bool
	}{
		{"duration text", "D", "12s", 12 * time.Second, false},
		{"duration seconds", "D", int64(4), 4 * time.Second, false},
		{"duration env", "D", "1m30s", 90 * time.Second, false},
		{"duration garbage", "D", "soon", 90 * time.Second, true},
		{"int toml", "N", int64(8554), 8554, false},
		{"int env", "N", " 9000 ", 9000, false},
		{"int from bool", "N", true, 9000, true},
		{"bool toml", "B", true, true, false},
		{"bool env", "B", "false", false, false},
		{"string", "Name", "porch", "porch", false},
		{"string from int", "Name", int64(1), "porch", true},
		{"list toml", "Items", []any{"a", "b"}, []string{"a", "b"}, false},
		{"list env", "Items", "x, ,y", []string{"x", "y"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := v.FieldByName(tt.field)
			err := assign(field, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("assign(%v) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got := field.Interface(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"session": map[string]any{"seek_timezone": "UTC"},
		"root":    "value",
	}

	tests := []struct {
		key  string
		want any
	}{
		{"root", "value"},
		{"session.seek_timezone", "UTC"},
		{"session.missing", nil},
		{"missing.key", nil},
		{"root.deeper", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := lookup(data, tt.key); got != tt.want {
			t.Errorf("lookup(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"Port":                "port",
		"LoggingLevel":        "logging-level",
		"SessionSeekTimezone": "session-seek-timezone",
	}
	for field, want := range tests {
		if got := flagName(field); got != want {
			t.Errorf("flagName(%q) = %q, want %q", field, got, want)
		}
	}
}
