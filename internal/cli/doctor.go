// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: doctor
// Short:   Run environment checks and diagnostics
// Aliases: (none)
//
// Examples:
//   cognito doctor               Run all checks
//   cognito doctor --json        Check results in JSON
//
// Checks Performed:
//   1. Config Valid        - Configuration file parses and validates
//   2. Python Interpreter  - Dev mode interpreter on PATH (dev mode only)
//   3. Backend Module      - server.py present (dev mode only)
//   4. Backend Binary      - Prebuilt binary present (packaged mode only)
//   5. Models Directory    - Models directory exists and is writable
//   6. Model Downloaded    - At least one .gguf model available
//   7. Backend Reachable   - Health endpoint answering, port conflicts
//   8. Backend Launch      - Trial start/stop when nothing is running
//
// The launch check spawns the real backend, waits for it to answer health
// probes, then shuts it down. On failure the last stderr lines from the
// child are included in the report.
//
// Exit Codes:
//   0   All checks passed (warnings allowed)
//   1   One or more checks failed

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/config"
	"github.com/jeranaias/cognito-tui/internal/logging"
)

// =============================================================================
// CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a single diagnostic check.
type CheckStatus int

const (
	// CheckPass indicates the check passed.
	CheckPass CheckStatus = iota
	// CheckWarn indicates a non-critical issue.
	CheckWarn
	// CheckFail indicates a critical issue.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the styled status marker for terminal output.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single diagnostic check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string   // Suggested fix command or instruction
	Detail  []string // Extra lines shown under the result (stderr tail etc.)
}

// Render returns a formatted representation of the check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	for _, line := range c.Detail {
		result += "\n" + DimStyle.Render("     | "+line)
	}
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("  -> "+c.Fix)
	}
	return result
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

// HandleDoctor handles the "doctor" command.
func HandleDoctor(args Args) error {
	cfg, cfgCheck := checkConfigValid()
	checks := []*HealthCheck{cfgCheck}
	checks = append(checks, runEnvironmentChecks(cfg, args)...)

	passed, warned, failed := 0, 0, 0
	for _, check := range checks {
		switch check.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	if args.JSON {
		return outputDoctorJSON(checks, passed, warned, failed)
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("cognito doctor"))
	fmt.Println(RenderSeparator(44))
	fmt.Println()

	for _, check := range checks {
		fmt.Println(check.Render())
	}

	fmt.Println()
	fmt.Println(RenderSeparator(44))

	summaryParts := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		summaryParts = append(summaryParts, WarningStyle.Render(fmt.Sprintf("%d warning%s", warned, plural(warned))))
	}
	if failed > 0 {
		summaryParts = append(summaryParts, ErrorStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Println(strings.Join(summaryParts, ", "))
	fmt.Println()

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

// outputDoctorJSON outputs doctor results in JSON format.
func outputDoctorJSON(checks []*HealthCheck, passed, warned, failed int) error {
	jsonChecks := make([]DoctorCheck, 0, len(checks))
	for _, check := range checks {
		jsonChecks = append(jsonChecks, DoctorCheck{
			Name:    check.Name,
			Status:  check.Status.String(),
			Message: check.Message,
			Fix:     check.Fix,
			Detail:  check.Detail,
		})
	}

	resp := NewJSONResponse("doctor", DoctorData{
		Checks: jsonChecks,
		Summary: DoctorSummary{
			Passed:  passed,
			Warned:  warned,
			Failed:  failed,
			Healthy: failed == 0,
		},
	})

	if failed > 0 {
		errMsg := fmt.Sprintf("%d check(s) failed", failed)
		resp.Success = false
		resp.Error = &errMsg
	}

	return resp.Print()
}

// =============================================================================
// CHECK FUNCTIONS
// =============================================================================

// runEnvironmentChecks runs every check that needs a loaded config.
func runEnvironmentChecks(cfg *config.Config, args Args) []*HealthCheck {
	var checks []*HealthCheck

	supCfg := NewSupervisorConfig(cfg)

	switch supCfg.Mode {
	case backend.ModeDev:
		checks = append(checks, checkPythonInterpreter(supCfg))
		checks = append(checks, checkBackendModule(supCfg))
	case backend.ModePackaged:
		checks = append(checks, checkBackendBinary(supCfg))
	default:
		checks = append(checks, &HealthCheck{
			Name:    "Backend Mode",
			Status:  CheckPass,
			Message: fmt.Sprintf("external mode: attaching to %s, nothing to launch", cfg.BackendBaseURL()),
		})
	}

	checks = append(checks, checkModelsDir(cfg))
	checks = append(checks, checkModelDownloaded(cfg))

	reach := checkBackendReachable(cfg, args)
	checks = append(checks, reach)

	// Only try a trial launch when nothing is answering and this config
	// would launch a process at all.
	if reach.Status != CheckPass && supCfg.Mode != backend.ModeExternal && !args.External {
		checks = append(checks, checkBackendLaunch(cfg, supCfg))
	}

	return checks
}

// checkConfigValid verifies the configuration loads and validates. Always
// returns a usable config alongside the check result.
func checkConfigValid() (*config.Config, *HealthCheck) {
	check := &HealthCheck{Name: "Config Valid"}

	cfg, err := config.Load()
	if cfg == nil {
		cfg = config.Default()
	}
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("config invalid: %v", err)
		check.Fix = "Run: cognito config reset"
		return cfg, check
	}

	path, pathErr := config.ConfigPathTOML()
	if pathErr == nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			check.Status = CheckPass
			check.Message = "config valid (using defaults, no file yet)"
			return cfg, check
		}
	}

	check.Status = CheckPass
	check.Message = "config valid"
	return cfg, check
}

// checkPythonInterpreter verifies the dev-mode interpreter is on PATH.
func checkPythonInterpreter(supCfg backend.SupervisorConfig) *HealthCheck {
	check := &HealthCheck{Name: "Python Interpreter"}

	python := supCfg.EffectivePython()
	path, err := exec.LookPath(python)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("interpreter %q not found on PATH", python)
		check.Fix = "Install Python 3.10+, or set backend.python to its location"
		return check
	}

	check.Status = CheckPass
	check.Message = fmt.Sprintf("interpreter found: %s", path)
	return check
}

// checkBackendModule verifies the dev-mode module directory holds server.py.
func checkBackendModule(supCfg backend.SupervisorConfig) *HealthCheck {
	check := &HealthCheck{Name: "Backend Module"}

	if supCfg.ModuleDir == "" {
		check.Status = CheckFail
		check.Message = "backend.module_dir is not set"
		check.Fix = "Run: cognito config set backend.module_dir <path to the server sources>"
		return check
	}

	serverPy := filepath.Join(supCfg.ModuleDir, "server.py")
	if _, err := os.Stat(serverPy); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("server.py not found in %s", supCfg.ModuleDir)
		check.Fix = "Point backend.module_dir at the directory containing server.py"
		return check
	}

	check.Status = CheckPass
	check.Message = fmt.Sprintf("backend module found: %s", serverPy)
	return check
}

// checkBackendBinary verifies the packaged-mode binary exists and is a file.
func checkBackendBinary(supCfg backend.SupervisorConfig) *HealthCheck {
	check := &HealthCheck{Name: "Backend Binary"}

	path := supCfg.BinaryPath()
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("backend binary not found at %s", path)
		check.Fix = "Reinstall cognito, or set backend.resources_dir to where the binary lives"
		return check
	}

	check.Status = CheckPass
	check.Message = fmt.Sprintf("backend binary found: %s", path)
	return check
}

// checkModelsDir verifies the models directory exists and is writable.
func checkModelsDir(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Models Directory"}

	dir := cfg.ModelsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("cannot create models directory: %v", err)
		check.Fix = fmt.Sprintf("Create it manually: mkdir -p %s", dir)
		return check
	}

	testFile := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("models directory not writable: %v", err)
		check.Fix = fmt.Sprintf("Check permissions on %s", dir)
		return check
	}
	os.Remove(testFile)

	check.Status = CheckPass
	check.Message = fmt.Sprintf("models directory writable: %s", dir)
	return check
}

// checkModelDownloaded verifies at least one model is present, and that the
// configured default exists when one is set.
func checkModelDownloaded(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Model Downloaded"}

	dir := cfg.ModelsDir()
	models := scanLocalModels(dir)
	if len(models) == 0 {
		check.Status = CheckWarn
		check.Message = "no models downloaded yet"
		check.Fix = "Run: cognito models search <name>, then cognito models download <repo-id> <file>"
		return check
	}

	if def := cfg.Models.Default; def != "" {
		found := false
		for _, m := range models {
			if m.Name == filepath.Base(def) {
				found = true
				break
			}
		}
		if !found {
			check.Status = CheckWarn
			check.Message = fmt.Sprintf("default model %s is not in %s", def, dir)
			check.Fix = "Download it, or change models.default"
			return check
		}
	}

	var total int64
	for _, m := range models {
		total += m.SizeBytes
	}

	check.Status = CheckPass
	check.Message = fmt.Sprintf("%d model%s available (%s)", len(models), plural(len(models)), formatBytes(total))
	return check
}

// checkBackendReachable probes the health endpoint, and distinguishes a
// free port from one held by something that is not the backend.
func checkBackendReachable(cfg *config.Config, args Args) *HealthCheck {
	check := &HealthCheck{Name: "Backend Reachable"}

	client := buildClient(cfg, args)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err == nil {
		if health.ModelLoaded {
			check.Message = fmt.Sprintf("backend running at %s (model %s loaded)", client.BaseURL(), health.ModelName)
		} else {
			check.Message = fmt.Sprintf("backend running at %s (no model loaded)", client.BaseURL())
		}
		check.Status = CheckPass
		return check
	}

	// Nothing healthy. If a process holds the port anyway, launching
	// would fail with an address conflict.
	addr := net.JoinHostPort(cfg.Backend.Host, strconv.Itoa(cfg.Backend.Port))
	conn, dialErr := net.DialTimeout("tcp", addr, probeTimeout)
	if dialErr == nil {
		conn.Close()
		check.Status = CheckFail
		check.Message = fmt.Sprintf("port %d is held by a process that fails health checks", cfg.Backend.Port)
		check.Fix = "Stop the conflicting process, or set backend.port to a free port"
		return check
	}

	if args.External || cfg.Backend.Mode == string(backend.ModeExternal) {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("backend not reachable at %s", client.BaseURL())
		check.Fix = "Start the backend yourself, or check backend.url"
		return check
	}

	check.Status = CheckPass
	check.Message = fmt.Sprintf("port %d free, backend starts on demand", cfg.Backend.Port)
	return check
}

// checkBackendLaunch performs a trial launch: spawn the backend, wait for
// health, then stop it. Failures carry the child's last stderr lines.
func checkBackendLaunch(cfg *config.Config, supCfg backend.SupervisorConfig) *HealthCheck {
	check := &HealthCheck{Name: "Backend Launch"}

	client := backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL: cfg.BackendBaseURL(),
		Timeout: probeTimeout,
	})
	sup := backend.NewSupervisor(client, supCfg)

	fmt.Fprintf(os.Stderr, "Trial-launching backend (%s mode, up to %s)...\n",
		supCfg.Mode, cfg.StartupTimeout())

	// Launch noise goes through the console logger; the check result itself
	// is reported below.
	logger, _, _ := logging.New(logging.Config{Level: "warn", Console: true})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupTimeout())
	defer cancel()
	ctx = pslog.ContextWithLogger(ctx, logger)

	startErr := sup.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	sup.Stop(stopCtx)

	if startErr != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("backend failed to start: %v", startErr)
		check.Fix = "Fix the errors above, then re-run cognito doctor"

		tail := sup.StderrTail()
		if len(tail) > 5 {
			tail = tail[len(tail)-5:]
		}
		check.Detail = tail
		return check
	}

	check.Status = CheckPass
	check.Message = "backend launches and answers health probes"
	return check
}
