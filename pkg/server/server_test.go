package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/smartproxy/pkg/cli"
	"mercator-hq/smartproxy/pkg/config"
	"mercator-hq/smartproxy/pkg/telemetry/logging"
)

// fakeIPMITool writes an executable that answers power status queries
// with a powered-off chassis.
func fakeIPMITool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipmitool")
	script := "#!/bin/sh\necho 'Chassis Power is off'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ipmitool: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ProxyHost:            "127.0.0.1",
		PortMappings:         []config.PortMapping{{ListenPort: 0, BackendPort: 80}},
		TargetHost:           "127.0.0.1",
		IPMIHost:             "127.0.0.1",
		IPMIUser:             "admin",
		IPMIPassword:         "secret",
		IPMIPath:             fakeIPMITool(t),
		InactivityTimeoutSec: 3600,
		StartupTimeoutSec:    300,
		CheckIntervalSec:     1,
		MaxQueueSize:         10,
		RequestTimeoutSec:    5,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSupervisorStartStop(t *testing.T) {
	sup := New(testConfig(t), logging.Discard(), BuildInfo{Version: "test"})

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- sup.Start(ctx) }()

	waitFor(t, "supervisor running", sup.IsRunning)
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Fatalf("Start returned %v after clean shutdown", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	if sup.IsRunning() {
		t.Error("supervisor still running after shutdown")
	}
}

func TestSupervisorRejectsSecondStart(t *testing.T) {
	sup := New(testConfig(t), logging.Discard(), BuildInfo{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- sup.Start(ctx) }()
	waitFor(t, "supervisor running", sup.IsRunning)

	if err := sup.Start(context.Background()); err == nil {
		t.Error("second Start succeeded while running")
	}

	cancel()
	<-errChan
}

func TestSupervisorBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	cfg := testConfig(t)
	cfg.PortMappings = []config.PortMapping{{ListenPort: port, BackendPort: 80}}

	sup := New(cfg, logging.Discard(), BuildInfo{})
	err = sup.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded on an occupied port")
	}
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "port_mappings" {
		t.Errorf("err = %v, want ConfigError on port_mappings", err)
	}
	if sup.IsRunning() {
		t.Error("supervisor reports running after failed Start")
	}
}

func TestSupervisorInvalidWarmupSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.WarmupSchedule = "not a schedule"

	sup := New(cfg, logging.Discard(), BuildInfo{})
	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("Start accepted an invalid warmup schedule")
	}
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "warmup_schedule" {
		t.Errorf("err = %v, want ConfigError on warmup_schedule", err)
	}
}

func TestSupervisorMissingIPMIPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.IPMIPath = ""

	sup := New(cfg, logging.Discard(), BuildInfo{})
	err := sup.Start(context.Background())
	if err == nil {
		t.Fatal("Start accepted an empty ipmi path")
	}
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "ipmi_path" {
		t.Errorf("err = %v, want ConfigError on ipmi_path", err)
	}
}

func TestSupervisorJournalEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal = config.JournalConfig{
		Enabled:       true,
		Path:          filepath.Join(t.TempDir(), "journal.db"),
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
	}

	sup := New(cfg, logging.Discard(), BuildInfo{})
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- sup.Start(ctx) }()
	waitFor(t, "supervisor running", sup.IsRunning)

	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		t.Errorf("journal file not created: %v", err)
	}

	cancel()
	if err := <-errChan; err != nil {
		t.Fatalf("Start returned %v", err)
	}
}
