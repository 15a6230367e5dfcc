package ops

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/hpungsan/minutes/internal/capture"
	"github.com/hpungsan/minutes/internal/config"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// Check is one doctor finding.
type Check struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Detail   string `json:"detail"`
	Required bool   `json:"required"`
}

// TargetReport is a resolved capture target.
type TargetReport struct {
	Kind   string         `json:"kind"`
	Target string         `json:"target"`
	Method capture.Method `json:"method"`
}

// DoctorOutput is the environment report.
type DoctorOutput struct {
	Checks   []Check        `json:"checks"`
	Targets  []TargetReport `json:"targets"`
	Warnings []string       `json:"warnings"`
	// Healthy is false when a required check failed.
	Healthy bool `json:"healthy"`
}

// Doctor checks the external tools and model the daemon needs and reports
// how the capture targets resolve. resolver may be nil to skip targets.
func Doctor(ctx context.Context, cfg *config.Config, resolver *capture.Resolver) *DoctorOutput {
	out := &DoctorOutput{Checks: []Check{}, Targets: []TargetReport{}, Warnings: []string{}}

	pipewire := toolCheck("pw-record", "PipeWire capture", false)
	arecord := toolCheck("arecord", "microphone-only fallback", false)
	out.Checks = append(out.Checks, pipewire, arecord,
		toolCheck("wpctl", "capture target resolution", false),
	)

	whisper := cfg.Whisper.Command
	if whisper == "" {
		whisper = "whisper-cli"
	}
	out.Checks = append(out.Checks, toolCheck(whisper, "transcription", true))

	model := Check{Name: "whisper model", Required: true}
	if info, err := os.Stat(cfg.ModelPath()); err == nil && !info.IsDir() {
		model.OK = true
		model.Detail = cfg.ModelPath()
	} else {
		model.Detail = "missing " + cfg.ModelPath()
	}
	out.Checks = append(out.Checks, model)

	if !pipewire.OK && !arecord.OK {
		out.Checks = append(out.Checks, Check{Name: "capture backend", Required: true, Detail: "neither pw-record nor arecord found"})
	}
	switch cfg.Audio.Backend {
	case config.BackendPipeWire:
		if !pipewire.OK {
			out.Warnings = append(out.Warnings, "audio.backend is pipewire but pw-record is not installed")
		}
	case config.BackendFallback:
		out.Warnings = append(out.Warnings, "fallback backend records the microphone only")
	}

	if resolver != nil && pipewire.OK {
		targets := resolver.ResolveAll(ctx,
			config.Enabled(cfg.Audio.CaptureSystem, true),
			config.Enabled(cfg.Audio.CaptureMicrophone, true),
		)
		for _, t := range targets {
			out.Targets = append(out.Targets, TargetReport{Kind: t.Kind.String(), Target: t.ID, Method: t.Method})
			if t.Method == capture.MethodFallback {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("%s target fell back to %s; wpctl could not resolve a device", t.Kind, t.ID))
			}
		}
	}

	out.Healthy = true
	for _, c := range out.Checks {
		if c.Required && !c.OK {
			out.Healthy = false
		}
	}
	return out
}

func toolCheck(name, purpose string, required bool) Check {
	c := Check{Name: name, Required: required}
	if path, err := lookPath(name); err == nil {
		c.OK = true
		c.Detail = path
	} else {
		c.Detail = "not found (needed for " + purpose + ")"
	}
	return c
}
