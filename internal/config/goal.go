package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/goalseek/internal/goalseek"
)

// ErrInvalidGoal indicates a goal definition that cannot be run.
var ErrInvalidGoal = errors.New("invalid goal definition")

// wrapperKey is the key a goal-seek block sits under inside a workflow step.
const wrapperKey = "goal_seek"

// Goal is a declarative goal definition as written in a goal file.
type Goal struct {
	Goal             string            `koanf:"goal" json:"goal"`
	Command          string            `koanf:"command" json:"command,omitempty"`
	Claude           string            `koanf:"claude" json:"claude,omitempty"`
	Shell            string            `koanf:"shell" json:"shell,omitempty"`
	Validator        string            `koanf:"validate" json:"validate"`
	Threshold        float64           `koanf:"threshold" json:"threshold"`
	MaxAttempts      int               `koanf:"max_attempts" json:"max_attempts"`
	TimeoutSeconds   int               `koanf:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Timeout          Duration          `koanf:"timeout" json:"timeout,omitempty"`
	FailOnIncomplete bool              `koanf:"fail_on_incomplete" json:"fail_on_incomplete"`
	Path             string            `koanf:"path" json:"path,omitempty"`
	Env              map[string]string `koanf:"env" json:"env,omitempty"`

	// Source is the file the goal was loaded from.
	Source string `koanf:"-" json:"source,omitempty"`
}

// NewGoal returns a goal with the documented defaults.
func NewGoal() *Goal {
	return &Goal{
		Threshold:   goalseek.DefaultThreshold,
		MaxAttempts: goalseek.DefaultMaxAttempts,
	}
}

// LoadGoal reads a goal definition from a YAML (.yaml, .yml) or TOML (.toml)
// file. The definition may be nested under a top-level goal_seek key.
func LoadGoal(path string) (*Goal, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".toml":
		parser = TOML()
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q (want .yaml, .yml or .toml)", ErrInvalidGoal, filepath.Ext(path))
	}

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	g, err := ParseGoal(content, parser)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g.Source = path
	return g, nil
}

// ParseGoal parses a goal definition with the given koanf parser.
func ParseGoal(content []byte, parser koanf.Parser) (*Goal, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), parser); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}
	if k.Exists(wrapperKey) {
		k = k.Cut(wrapperKey)
	}

	g := NewGoal()
	if err := k.UnmarshalWithConf("", g, unmarshalConf(g)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the definition without resolving it.
func (g *Goal) Validate() error {
	var errs []error

	set := 0
	for _, c := range []string{g.Command, g.Claude, g.Shell} {
		if strings.TrimSpace(c) != "" {
			set++
		}
	}
	switch set {
	case 0:
		errs = append(errs, errors.New("one of command, claude or shell is required"))
	case 1:
	default:
		errs = append(errs, errors.New("only one of command, claude or shell may be set"))
	}

	if strings.TrimSpace(g.Validator) == "" {
		errs = append(errs, errors.New("validate is required"))
	}
	if g.Threshold < goalseek.MinScore || g.Threshold > goalseek.MaxScore {
		errs = append(errs, fmt.Errorf("threshold must be between 0 and 100, got %v", g.Threshold))
	}
	if g.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", g.MaxAttempts))
	}
	if g.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds cannot be negative, got %d", g.TimeoutSeconds))
	}
	if g.TimeoutSeconds > 0 && g.Timeout > 0 {
		errs = append(errs, errors.New("set either timeout_seconds or timeout, not both"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidGoal, errors.Join(errs...))
}

// Action returns the action command. A claude action is passed to the
// configured assistant binary.
func (g *Goal) Action(assistant string) string {
	switch {
	case strings.TrimSpace(g.Claude) != "":
		return strings.TrimSpace(assistant) + " " + strings.TrimSpace(g.Claude)
	case strings.TrimSpace(g.Shell) != "":
		return g.Shell
	default:
		return g.Command
	}
}

// TimeoutDuration returns the session timeout, or zero for none.
func (g *Goal) TimeoutDuration() time.Duration {
	if g.TimeoutSeconds > 0 {
		return time.Duration(g.TimeoutSeconds) * time.Second
	}
	return g.Timeout.Duration()
}

// WorkingDir returns the directory commands run in. An empty path means
// the caller's working directory; a relative one resolves against the
// goal file's directory.
func (g *Goal) WorkingDir() string {
	if g.Path == "" || filepath.IsAbs(g.Path) || g.Source == "" {
		return g.Path
	}
	return filepath.Join(filepath.Dir(g.Source), g.Path)
}

// EngineConfig resolves the definition into an engine config.
func (g *Goal) EngineConfig(exec ExecutorConfig) (goalseek.Config, error) {
	if err := g.Validate(); err != nil {
		return goalseek.Config{}, err
	}

	dir := g.WorkingDir()
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return goalseek.Config{}, fmt.Errorf("%w: path %q: %v", ErrInvalidGoal, dir, err)
		}
		if !info.IsDir() {
			return goalseek.Config{}, fmt.Errorf("%w: path %q is not a directory", ErrInvalidGoal, dir)
		}
	}

	cfg := goalseek.Config{
		Goal:             g.Goal,
		Action:           g.Action(exec.Assistant),
		Validator:        g.Validator,
		Threshold:        g.Threshold,
		MaxAttempts:      g.MaxAttempts,
		Timeout:          g.TimeoutDuration(),
		FailOnIncomplete: g.FailOnIncomplete,
		Dir:              dir,
		Env:              g.Env,
	}
	if err := cfg.Validate(); err != nil {
		return goalseek.Config{}, err
	}
	return cfg, nil
}
