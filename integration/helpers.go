//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// binaryPath returns the path to the vibe binary, building it if needed
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../vibe",
		filepath.Join(os.Getenv("GOPATH"), "bin", "vibe"),
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../vibe", "../cmd/vibe")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}
	abs, _ := filepath.Abs("../vibe")
	return abs
}

// TempRoot creates the data layout for one test and returns a config
// file pointing at it
func TempRoot(t *testing.T) (root, configPath string) {
	t.Helper()
	root = t.TempDir()
	configPath = filepath.Join(root, "config.toml")

	config := `[general]
data_dir = "` + filepath.Join(root, "data") + `"
workspace_dir = "` + filepath.Join(root, "workspace") + `"
registry_file = "` + filepath.Join(root, "running-jobs.json") + `"
database_path = "` + filepath.Join(root, "jobs.db") + `"

[llm]
api_key = ""
`
	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return root, configPath
}

// runCLI runs the binary with the given config and returns combined output
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath(t), append([]string{"--config", configPath}, args...)...)
	cmd.Env = append(os.Environ(), "OPENAI_API_KEY=", "NO_COLOR=1")
	out, err := cmd.CombinedOutput()
	return string(out), err
}
