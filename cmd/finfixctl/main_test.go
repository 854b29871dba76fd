package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	summary := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(summary, []byte(`{"currency":"EUR","incomes":"100","expenses":[]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"empty summary stays on welcome", []string{"resolve"}, "stay"},
		{"empty summary needs currency", []string{"resolve", "--path", "/onboarding/debts"}, "redirect /onboarding/currency"},
		{"missing expenses", []string{"resolve", "--summary", summary, "--path", "/onboarding/installments"}, "redirect /onboarding/expenses"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if strings.TrimSpace(out) != tt.want {
				t.Fatalf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestResolveOnboardedGoesToModeLanding(t *testing.T) {
	summary := filepath.Join(t.TempDir(), "summary.json")
	if err := os.WriteFile(summary, []byte(`{"isOnboarded":true}`), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "resolve", "--summary", summary, "--mode", "pwa")
	if err != nil || strings.TrimSpace(out) != "redirect /analytics" {
		t.Fatalf("got %q, %v", out, err)
	}
	if _, err := run(t, "resolve", "--mode", "kiosk"); err == nil {
		t.Fatal("expected an invalid mode error")
	}
}

func TestSteps(t *testing.T) {
	out, err := run(t, "steps")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"welcome", "/onboarding/installments", "/profile"} {
		if !strings.Contains(out, want) {
			t.Fatalf("steps output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckDate(t *testing.T) {
	out, err := run(t, "check-date", "15032030", "--today", "2025-01-01")
	if err != nil || strings.TrimSpace(out) != "15.03.2030 -> 2030-03-15" {
		t.Fatalf("got %q, %v", out, err)
	}
	if _, err := run(t, "check-date", "3102", "--today", "2025-01-01"); err == nil {
		t.Fatal("expected incomplete date error")
	}
	if _, err := run(t, "check-date", "01.01.2100", "--today", "2025-01-01"); err == nil {
		t.Fatal("expected a date beyond the horizon to fail")
	}
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := filepath.Join(t.TempDir(), "finfix.db")
	out, err := run(t, "migrate", "up", "--db", db)
	if err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if !strings.HasPrefix(out, "version ") || strings.HasPrefix(out, "version 0") {
		t.Fatalf("unexpected version output %q", out)
	}
	out, err = run(t, "migrate", "version", "--db", db)
	if err != nil || !strings.HasPrefix(out, "version ") {
		t.Fatalf("version: %q %v", out, err)
	}
}
