package main

import (
	"path/filepath"
	"testing"

	"recflow/internal/testsupport"
)

func TestDoctorOfflinePasses(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	env.cfg.Delivery.TargetMB = 1
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "FFprobe")
	requireContains(t, out, "Source directory")
	requireContains(t, out, "All required checks passed")
	requireNotContains(t, out, "Telegram")
}

func TestDoctorReportsMissingBinary(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries("ffmpeg"))
	env.cfg.Delivery.TargetMB = 1
	writeTestConfig(t, env.configPath, env.cfg)
	t.Setenv("PATH", filepath.Join(env.baseDir, "bin"))

	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without ffprobe")
	}
	requireContains(t, err.Error(), "1 required check(s) failed")
	requireContains(t, out, "FAIL")
	requireContains(t, out, `binary "ffprobe" not found`)
}
