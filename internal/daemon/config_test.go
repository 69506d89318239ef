package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yanzu-lab/yvp/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("YVP_HOME", "/srv/yvp")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8787 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8787)
	}
	if cfg.Store.Dir != "/srv/yvp" {
		t.Errorf("Store.Dir = %q, want /srv/yvp", cfg.Store.Dir)
	}
	if cfg.Ledger.Policy != domain.PolicyCurrent {
		t.Errorf("Ledger.Policy = %q, want %q", cfg.Ledger.Policy, domain.PolicyCurrent)
	}
	if cfg.Logging.File != filepath.Join("/srv/yvp", "yvp.log") {
		t.Errorf("Logging.File = %q", cfg.Logging.File)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("YVP_HOME", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 8787 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfig_File(t *testing.T) {
	home := t.TempDir()
	t.Setenv("YVP_HOME", home)
	data := `
[api]
port = 9000

[ledger]
policy = "v7-alltime"
timezone = "Asia/Shanghai"
max_active_claims = 3

[roster]
admins = ["boss", "lead"]
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, default should survive a partial file", cfg.API.Host)
	}
	if len(cfg.Roster.Admins) != 2 {
		t.Errorf("Roster.Admins = %v, want 2 names", cfg.Roster.Admins)
	}

	p, err := cfg.Ledger.ResolvePolicy()
	if err != nil {
		t.Fatalf("ResolvePolicy() error: %v", err)
	}
	if p.Version != domain.PolicyLegacy || p.CumulativeFines {
		t.Errorf("policy = %+v, want legacy preset", p)
	}
	if p.MaxActiveClaims != 3 {
		t.Errorf("MaxActiveClaims = %d, want override 3", p.MaxActiveClaims)
	}
}

func TestLoadConfig_InvalidPolicy(t *testing.T) {
	home := t.TempDir()
	t.Setenv("YVP_HOME", home)
	os.WriteFile(filepath.Join(home, "config.toml"), []byte("[ledger]\npolicy = \"v9\"\n"), 0600)

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should reject an unknown policy")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("YVP_HOME", t.TempDir())
	cfg := DefaultConfig()
	rate := 0.1
	cfg.Ledger.FineRate = &rate
	cfg.Roster.Admins = []string{"boss"}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if got.Ledger.FineRate == nil || *got.Ledger.FineRate != 0.1 {
		t.Errorf("FineRate = %v, want 0.1", got.Ledger.FineRate)
	}
	if got.Ledger.MaxActiveClaims != nil {
		t.Errorf("MaxActiveClaims = %v, unset overrides should stay unset", *got.Ledger.MaxActiveClaims)
	}
}

func TestResolvePolicy_Overrides(t *testing.T) {
	days, rate, off := 14, 0.5, false
	c := LedgerConfig{FineWindowDays: &days, FineRate: &rate, RequireAcceptFeedback: &off}

	p, err := c.ResolvePolicy()
	if err != nil {
		t.Fatalf("ResolvePolicy() error: %v", err)
	}
	if p.FineWindow != 14*24*time.Hour {
		t.Errorf("FineWindow = %v, want 336h", p.FineWindow)
	}
	if p.FineRate != 0.5 || p.RequireAcceptFeedback {
		t.Errorf("policy = %+v, overrides not applied", p)
	}

	bad := 1.5
	if _, err := (LedgerConfig{FineRate: &bad}).ResolvePolicy(); err == nil {
		t.Error("fine_rate above 1 should be rejected")
	}
}

func TestLocation(t *testing.T) {
	loc, err := LedgerConfig{}.Location()
	if err != nil || loc != time.Local {
		t.Errorf("Location() = %v, %v; want Local", loc, err)
	}
	if _, err := (LedgerConfig{Timezone: "Mars/Olympus"}).Location(); err == nil {
		t.Error("unknown timezone should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Minute); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ─── Daemon Wiring ──────────────────────────────────────────────────────────

func testConfig(t *testing.T) Config {
	t.Helper()
	home := t.TempDir()
	t.Setenv("YVP_HOME", home)
	cfg := DefaultConfig()
	cfg.API.Port = 0
	cfg.Logging.Quiet = true
	cfg.Roster.Admins = []string{"boss"}
	cfg.Health.Interval = "50ms"
	return cfg
}

func TestNewWithConfig(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	boss, err := d.Roster.Resolve("boss")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if !boss.IsAdmin() {
		t.Error("seeded user should be an administrator")
	}
	if d.Policy.Version != domain.PolicyCurrent {
		t.Errorf("Policy = %q, want %q", d.Policy.Version, domain.PolicyCurrent)
	}
	if d.Workflow == nil || d.Ledger == nil || d.Health == nil || d.Server == nil {
		t.Error("services not wired")
	}
}

func TestNewWithConfig_BadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ledger.Policy = "nope"
	if _, err := NewWithConfig(cfg); err == nil {
		t.Error("NewWithConfig() should fail on unknown policy")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if !d.Health.IsHealthy() {
		t.Errorf("health = %+v, want healthy", d.Health.Statuses())
	}
}
