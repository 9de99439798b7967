package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if AppConfig.Intake.MaxSizeMB != 100 {
		t.Errorf("expected 100MB limit, got %d", AppConfig.Intake.MaxSizeMB)
	}
	if AppConfig.Intake.ProgressStep != 5 || AppConfig.Intake.ProgressIntervalMs != 100 {
		t.Errorf("unexpected progress settings: %+v", AppConfig.Intake)
	}
	if len(AppConfig.Intake.AcceptedTypes) != 5 {
		t.Errorf("expected 5 accepted types, got %v", AppConfig.Intake.AcceptedTypes)
	}
	if AppConfig.Backend.TimeoutSeconds != 0 {
		t.Errorf("expected no backend timeout by default, got %d", AppConfig.Backend.TimeoutSeconds)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	configPath := filepath.Join(dir, "trafficwatch.json")
	content := `{"server":{"port":9000},"backend":{"baseURL":"http://detector:8000","endpoints":{"speed":"/v2/speed"}}}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("TW_MAX_UPLOAD_MB", "25")
	t.Setenv("TW_ACCEPTED_TYPES", "video/mp4, image/png")

	if err := LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if AppConfig.Server.Port != 9000 {
		t.Errorf("expected port from file, got %d", AppConfig.Server.Port)
	}
	if AppConfig.Backend.BaseURL != "http://detector:8000" {
		t.Errorf("unexpected backend URL %q", AppConfig.Backend.BaseURL)
	}
	if p, ok := EndpointPath("speed"); !ok || p != "/v2/speed" {
		t.Errorf("expected speed override, got %q %v", p, ok)
	}
	if AppConfig.Intake.MaxSizeMB != 25 {
		t.Errorf("expected env override 25, got %d", AppConfig.Intake.MaxSizeMB)
	}
	if got := AppConfig.Intake.AcceptedTypes; len(got) != 2 || got[1] != "image/png" {
		t.Errorf("unexpected accepted types %v", got)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
