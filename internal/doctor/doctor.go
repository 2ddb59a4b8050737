// Package doctor runs readiness diagnostics for config, the answering
// service, speech engines, audio input, and the indicator backend.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/colloquy/internal/audio"
	"github.com/rbright/colloquy/internal/config"
	"github.com/rbright/colloquy/internal/hypr"
	"github.com/rbright/colloquy/internal/qa"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes every check for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", loaded.Path),
	}}

	checks = append(checks, checkService(ctx, cfg.API))
	checks = append(checks, checkSpeak(cfg.Speak)...)
	if cfg.Listen.Enable {
		checks = append(checks, checkEnvKey("listen.api_key", cfg.Listen.APIKeyEnv))
		checks = append(checks, checkAudioSelection(ctx, cfg))
	}
	if cfg.Indicator.Enable {
		checks = append(checks, checkIndicator(ctx, cfg.Indicator))
	}

	return Report{Checks: checks}
}

// checkService dials the answering service without calling initialize,
// which can take minutes on a cold dataset.
func checkService(ctx context.Context, api config.APIConfig) Check {
	client, err := qa.NewClient(qa.Options{
		BaseURL:    api.BaseURL,
		Dataset:    api.Dataset,
		SOCKSProxy: api.SOCKSProxy,
	})
	if err != nil {
		return Check{Name: "api", Pass: false, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return Check{Name: "api", Pass: false, Message: fmt.Sprintf("%s unreachable: %v", api.BaseURL, err)}
	}
	return Check{Name: "api", Pass: true, Message: fmt.Sprintf("reachable at %s (dataset %q)", api.BaseURL, api.Dataset)}
}

func checkSpeak(cfg config.SpeakConfig) []Check {
	switch cfg.Backend {
	case "espeak":
		checks := []Check{checkCommand(cfg.Command.Argv, "speak.command")}
		if len(cfg.VoicesCommand.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.VoicesCommand.Argv, "speak.voices_command"))
		}
		return checks
	case "openai":
		return []Check{checkEnvKey("speak.openai_api_key", cfg.OpenAIAPIKeyEnv)}
	default:
		return []Check{{Name: "speak", Pass: true, Message: "speech output disabled"}}
	}
}

// checkEnvKey reports whether the variable named by envName is set,
// without echoing its value.
func checkEnvKey(name string, envName string) Check {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return Check{Name: name, Pass: false, Message: "no environment variable configured"}
	}
	if strings.TrimSpace(os.Getenv(envName)) == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is empty (set it or pass --env)", envName)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is set", envName)}
}

func checkIndicator(ctx context.Context, cfg config.IndicatorConfig) Check {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		return checkBinary("busctl", "desktop notifications")
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	version, err := hypr.Version(ctx)
	if err != nil {
		return Check{Name: "hyprctl", Pass: false, Message: err.Error()}
	}
	return Check{Name: "hyprctl", Pass: true, Message: "Hyprland " + version}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
