// cmd/build-worker/service.go
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	serviceName     = "vibe-build-worker"
	systemdUnitPath = "/etc/systemd/system/vibe-build-worker.service"
)

const systemdUnitTemplate = `[Unit]
Description=vibe-builder build worker
Documentation=https://github.com/hochfrequenz/vibe-builder
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.ExecStart}}
Restart=always
RestartSec=10
{{if .APIKeyFile}}EnvironmentFile=-{{.APIKeyFile}}
{{end}}
{{if .User}}User={{.User}}{{end}}
{{if .Group}}Group={{.Group}}{{end}}

# Dev servers started by jobs must outlive a worker restart
KillMode=process

NoNewPrivileges=true
ProtectSystem=strict
PrivateTmp=true
ReadWritePaths={{.DataDir}} {{.WorkspaceDir}}

LimitNOFILE=65535

StandardOutput=journal
StandardError=journal
SyslogIdentifier=vibe-build-worker

[Install]
WantedBy=multi-user.target
`

type unitConfig struct {
	ExecStart    string
	User         string
	Group        string
	DataDir      string
	WorkspaceDir string
	APIKeyFile   string
}

var (
	serviceUser         string
	serviceGroup        string
	serviceDataDir      string
	serviceWorkspaceDir string
	serviceEnvFile      string
)

func newServiceCmd() *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the build-worker systemd service",
		Long:  "Install, start, stop, and manage the build-worker as a systemd service.",
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install build-worker as a systemd service",
		Long: `Creates a systemd unit file and enables the build-worker service.

The service starts on boot, restarts on failure after 10 seconds, and
reads its config from /etc/vibe-builder/config.toml when present. Put
OPENAI_API_KEY=... into the environment file to enable auto-fix.

Requires root privileges.`,
		RunE: runServiceInstall,
	}
	installCmd.Flags().StringVar(&serviceUser, "user", "", "User to run the service as")
	installCmd.Flags().StringVar(&serviceGroup, "group", "", "Group to run the service as")
	installCmd.Flags().StringVar(&serviceDataDir, "data-dir", "/var/lib/vibe-builder", "Data directory (ledger, job database, registry)")
	installCmd.Flags().StringVar(&serviceWorkspaceDir, "workspace-dir", "/var/lib/vibe-builder/workspace", "Job workspace directory")
	installCmd.Flags().StringVar(&serviceEnvFile, "env-file", "/etc/vibe-builder/env", "Environment file with OPENAI_API_KEY")

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the build-worker systemd service",
		Long:  "Stops the service, disables it, and removes the systemd unit file.",
		RunE:  runServiceUninstall,
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show build-worker service logs",
		Long:  "Display logs from the build-worker service via journalctl.",
		RunE:  runServiceLogs,
	}
	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 50, "Number of lines to show")

	serviceCmd.AddCommand(
		installCmd,
		uninstallCmd,
		systemctlCmd("start", "Start the build-worker service"),
		systemctlCmd("stop", "Stop the build-worker service"),
		systemctlCmd("restart", "Restart the build-worker service"),
		&cobra.Command{
			Use:   "status",
			Short: "Show build-worker service status",
			RunE:  runServiceStatus,
		},
		logsCmd,
	)
	return serviceCmd
}

func requireLinux() error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("systemd service management is only supported on Linux")
	}
	return nil
}

// renderUnit fills the unit template
func renderUnit(cfg unitConfig) (string, error) {
	tmpl, err := template.New("unit").Parse(systemdUnitTemplate)
	if err != nil {
		return "", fmt.Errorf("parsing unit template: %w", err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, cfg); err != nil {
		return "", fmt.Errorf("executing unit template: %w", err)
	}
	return out.String(), nil
}

func runServiceInstall(cmd *cobra.Command, args []string) error {
	if err := requireLinux(); err != nil {
		return err
	}
	if !isRoot() {
		return fmt.Errorf("root privileges required to install service. Try: sudo %s service install", os.Args[0])
	}

	execPath, err := findWorkerBinary()
	if err != nil {
		return err
	}
	execStart := execPath
	if cfgPath := systemConfigPath(); cfgPath != "" {
		execStart = fmt.Sprintf("%s --config %s", execPath, cfgPath)
	}

	for _, dir := range []string{serviceDataDir, serviceWorkspaceDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
		fmt.Printf("Created directory: %s\n", dir)

		if serviceUser != "" {
			if err := runCmd("chown", "-R", serviceUser+":"+serviceGroup, dir); err != nil {
				fmt.Printf("Warning: could not set ownership on %s: %v\n", dir, err)
			}
		}
	}

	unit, err := renderUnit(unitConfig{
		ExecStart:    execStart,
		User:         serviceUser,
		Group:        serviceGroup,
		DataDir:      serviceDataDir,
		WorkspaceDir: serviceWorkspaceDir,
		APIKeyFile:   serviceEnvFile,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(systemdUnitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}
	fmt.Printf("Created systemd unit: %s\n", systemdUnitPath)

	if err := runCmd("systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("reloading systemd: %w", err)
	}
	if err := runCmd("systemctl", "enable", serviceName); err != nil {
		return fmt.Errorf("enabling service: %w", err)
	}

	fmt.Printf("\nService installed and enabled.\n")
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Point [general] paths in %s at %s\n", defaultConfigPaths[0], serviceDataDir)
	fmt.Printf("  2. Start the service: build-worker service start\n")
	fmt.Printf("  3. View logs: build-worker service logs -f\n")
	return nil
}

func runServiceUninstall(cmd *cobra.Command, args []string) error {
	if err := requireLinux(); err != nil {
		return err
	}
	if !isRoot() {
		return fmt.Errorf("root privileges required. Try: sudo %s service uninstall", os.Args[0])
	}

	_ = runCmd("systemctl", "stop", serviceName)
	_ = runCmd("systemctl", "disable", serviceName)

	if err := os.Remove(systemdUnitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit file: %w", err)
	}
	if err := runCmd("systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("reloading systemd: %w", err)
	}

	fmt.Printf("Service uninstalled.\n")
	fmt.Printf("Note: %s and %s were not removed.\n", defaultConfigPaths[0], serviceDataDir)
	return nil
}

// systemctlCmd builds the start/stop/restart subcommands
func systemctlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLinux(); err != nil {
				return err
			}
			if !serviceInstalled() {
				return fmt.Errorf("service not installed. Run: build-worker service install")
			}
			if !isRoot() {
				return runCmdInteractive("sudo", "systemctl", action, serviceName)
			}
			if err := runCmd("systemctl", action, serviceName); err != nil {
				return fmt.Errorf("%s service: %w", action, err)
			}
			fmt.Printf("Service %s: ok\n", action)
			return nil
		},
	}
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	if err := requireLinux(); err != nil {
		return err
	}
	if !serviceInstalled() {
		fmt.Printf("Service not installed.\n")
		fmt.Printf("Install with: build-worker service install\n")
		return nil
	}
	return runCmdInteractive("systemctl", "status", serviceName, "--no-pager")
}

func runServiceLogs(cmd *cobra.Command, args []string) error {
	if err := requireLinux(); err != nil {
		return err
	}

	follow, _ := cmd.Flags().GetBool("follow")
	lines, _ := cmd.Flags().GetInt("lines")

	jArgs := []string{"-u", serviceName, "-n", fmt.Sprintf("%d", lines), "--no-pager"}
	if follow {
		jArgs = append(jArgs, "-f")
	}
	return runCmdInteractive("journalctl", jArgs...)
}

func isRoot() bool {
	return os.Geteuid() == 0
}

func serviceInstalled() bool {
	_, err := os.Stat(systemdUnitPath)
	return err == nil
}

func findWorkerBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			return resolved, nil
		}
	}
	if path, err := exec.LookPath("build-worker"); err == nil {
		return filepath.Abs(path)
	}
	for _, p := range []string{"/usr/local/bin/build-worker", "/usr/bin/build-worker"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find build-worker binary. Ensure it's installed in PATH or /usr/local/bin")
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func runCmdInteractive(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
