package main

import (
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit, err := renderUnit(unitConfig{
		ExecStart:    "/usr/local/bin/build-worker --config /etc/vibe-builder/config.toml",
		User:         "vibe",
		Group:        "vibe",
		DataDir:      "/var/lib/vibe-builder",
		WorkspaceDir: "/var/lib/vibe-builder/workspace",
		APIKeyFile:   "/etc/vibe-builder/env",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"ExecStart=/usr/local/bin/build-worker --config /etc/vibe-builder/config.toml",
		"User=vibe",
		"EnvironmentFile=-/etc/vibe-builder/env",
		"ReadWritePaths=/var/lib/vibe-builder /var/lib/vibe-builder/workspace",
		"KillMode=process",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestRenderUnit_OptionalFields(t *testing.T) {
	unit, err := renderUnit(unitConfig{ExecStart: "/bin/build-worker", DataDir: "/d", WorkspaceDir: "/w"})
	if err != nil {
		t.Fatal(err)
	}
	for _, unwanted := range []string{"User=", "Group=", "EnvironmentFile="} {
		if strings.Contains(unit, unwanted) {
			t.Errorf("unit contains %q without a value", unwanted)
		}
	}
}
