package capture

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind is the audio stream a capture target refers to.
type Kind int

const (
	System Kind = iota
	Microphone
)

func (k Kind) String() string {
	if k == Microphone {
		return "microphone"
	}
	return "system"
}

// Method records which resolution step produced a target.
type Method string

const (
	MethodInspect    Method = "wpctl-inspect"
	MethodStatus     Method = "wpctl-status"
	MethodConfigured Method = "wpctl-configured"
	MethodFallback   Method = "fallback-alias"
)

// PipeWire aliases for the current default devices.
const (
	SystemAlias     = "@DEFAULT_AUDIO_SINK@"
	MicrophoneAlias = "@DEFAULT_AUDIO_SOURCE@"

	// Aliases pw-record understands on its own, used when wpctl is no help.
	SystemFallbackTarget     = "@DEFAULT_AUDIO_SINK.monitor"
	MicrophoneFallbackTarget = "@DEFAULT_AUDIO_SOURCE@"
)

const queryTimeout = 3 * time.Second

// Target is a resolved capture device.
type Target struct {
	Kind   Kind   `json:"-"`
	ID     string `json:"target"`
	Method Method `json:"method"`
}

// CommandRunner runs an external query tool and returns its stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Resolver maps the default sink and source to concrete PipeWire node ids.
// Nothing is cached; every call queries wpctl again.
type Resolver struct {
	runner CommandRunner
	logger *zap.SugaredLogger
}

// NewResolver creates a Resolver. A nil runner uses ExecRunner.
func NewResolver(runner CommandRunner, logger *zap.SugaredLogger) *Resolver {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{runner: runner, logger: logger}
}

// Resolve walks the fallback chain for kind:
//  1. wpctl inspect on the default alias
//  2. the node flagged default in wpctl status
//  3. the node matching the configured default device name
//  4. the static alias
func (r *Resolver) Resolve(ctx context.Context, kind Kind) Target {
	alias := SystemAlias
	if kind == Microphone {
		alias = MicrophoneAlias
	}

	if out, err := r.query(ctx, "inspect", alias); err == nil {
		if id, ok := ParseInspectID(string(out)); ok {
			return Target{Kind: kind, ID: id, Method: MethodInspect}
		}
	}

	if out, err := r.query(ctx, "status", "-n"); err == nil {
		if id, method, ok := ParseStatusDefault(string(out), kind); ok {
			return Target{Kind: kind, ID: id, Method: method}
		}
	}

	r.logger.Debugw("falling back to alias target", "kind", kind.String())
	if kind == Microphone {
		return Target{Kind: kind, ID: MicrophoneFallbackTarget, Method: MethodFallback}
	}
	return Target{Kind: kind, ID: SystemFallbackTarget, Method: MethodFallback}
}

// ResolveAll resolves the targets for the enabled streams, system first.
func (r *Resolver) ResolveAll(ctx context.Context, system, microphone bool) []Target {
	var targets []Target
	if system {
		targets = append(targets, r.Resolve(ctx, System))
	}
	if microphone {
		targets = append(targets, r.Resolve(ctx, Microphone))
	}
	return targets
}

func (r *Resolver) query(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	out, err := r.runner.Output(ctx, "wpctl", args...)
	if err != nil {
		r.logger.Debugw("wpctl query failed", "args", args, "error", err)
	}
	return out, err
}

// ParseInspectID extracts the node id from `wpctl inspect` output,
// whose first line reads "id 61, type PipeWire:Interface:Node".
func ParseInspectID(output string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		rest, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "id ")
		if !ok {
			continue
		}
		id, _, _ := strings.Cut(rest, ",")
		id = strings.TrimSpace(id)
		if isDigits(id) {
			return id, true
		}
	}
	return "", false
}

type statusNode struct {
	id        string
	name      string
	isDefault bool
}

// ParseStatusDefault picks a node from `wpctl status -n` output: the one
// marked with '*' in the Sinks or Sources section, else the one whose name
// matches the configured default device.
func ParseStatusDefault(output string, kind Kind) (string, Method, bool) {
	nodes := parseStatusNodes(output, kind)
	for _, n := range nodes {
		if n.isDefault {
			return n.id, MethodStatus, true
		}
	}

	if name, ok := ParseConfiguredName(output, kind); ok {
		for _, n := range nodes {
			if n.name == name {
				return n.id, MethodConfigured, true
			}
		}
	}
	return "", "", false
}

func parseStatusNodes(output string, kind Kind) []statusNode {
	label := "Sinks:"
	if kind == Microphone {
		label = "Sources:"
	}

	var nodes []statusNode
	inSection := false
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inSection {
			inSection = strings.HasSuffix(line, label)
			continue
		}
		// Any other header closes the section.
		if strings.HasSuffix(line, ":") {
			break
		}
		if n, ok := parseStatusNodeLine(line); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// parseStatusNodeLine parses lines like "│  *   61. alsa_output.pci [vol: 0.44]".
func parseStatusNodeLine(line string) (statusNode, bool) {
	start := strings.IndexFunc(line, isDigit)
	if start < 0 {
		return statusNode{}, false
	}
	end := start
	for end < len(line) && isDigit(rune(line[end])) {
		end++
	}

	rest, ok := strings.CutPrefix(strings.TrimLeft(line[end:], " \t"), ".")
	if !ok {
		return statusNode{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return statusNode{}, false
	}

	return statusNode{
		id:        line[start:end],
		name:      fields[0],
		isDefault: strings.Contains(line[:start], "*"),
	}, true
}

// ParseConfiguredName reads the "Default Configured Devices" entry for kind,
// e.g. "0. Audio/Sink    bluez_output.14:06:A7:95:AC:6C".
func ParseConfiguredName(output string, kind Kind) (string, bool) {
	key := "Audio/Sink"
	if kind == Microphone {
		key = "Audio/Source"
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		_, after, ok := strings.Cut(sc.Text(), key)
		if !ok {
			continue
		}
		if fields := strings.Fields(after); len(fields) > 0 {
			return fields[0], true
		}
	}
	return "", false
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}
