package goalseek

import (
	"encoding/json"
	"regexp"
	"strconv"

	"al.essio.dev/pkg/shellescape"
)

// ContextVersion identifies the layout of the variables passed between
// attempts. Bump it when variables are renamed or removed.
const ContextVersion = 1

// Template variable names.
const (
	VarScore   = "validation.score"
	VarOutput  = "validation.output"
	VarGaps    = "validation.gaps"
	VarScored  = "validation.scored"
	VarAttempt = "attempt"
	VarGoal    = "goal"
)

// Environment variable names injected into every command.
const (
	EnvScore          = "GOALSEEK_VALIDATION_SCORE"
	EnvOutput         = "GOALSEEK_VALIDATION_OUTPUT"
	EnvGaps           = "GOALSEEK_VALIDATION_GAPS"
	EnvAttempt        = "GOALSEEK_ATTEMPT"
	EnvContextVersion = "GOALSEEK_CONTEXT_VERSION"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// AttemptContext is what an attempt knows about its predecessor. It is
// rebuilt from the latest Attempt before every iteration and passed by value.
type AttemptContext struct {
	Version  int
	Attempt  int
	Goal     string
	Previous *Attempt
}

// NewAttemptContext builds the context for attempt index given the previous
// attempt, which is nil for the first one.
func NewAttemptContext(goal string, index int, previous *Attempt) AttemptContext {
	c := AttemptContext{Version: ContextVersion, Attempt: index, Goal: goal}
	if previous != nil {
		p := *previous
		c.Previous = &p
	}
	return c
}

// Vars returns the template variables. On the first attempt the validation
// variables are present but empty.
func (c AttemptContext) Vars() map[string]string {
	vars := map[string]string{
		VarAttempt: strconv.Itoa(c.Attempt),
		VarGoal:    c.Goal,
		VarScore:   "",
		VarOutput:  "",
		VarGaps:    "",
		VarScored:  "",
	}
	if p := c.Previous; p != nil {
		vars[VarScore] = formatScore(p.Score)
		vars[VarOutput] = p.ValidationOutput
		vars[VarGaps] = gapsValue(p)
		vars[VarScored] = strconv.FormatBool(p.Scored())
	}
	return vars
}

// Env returns the environment variables for the attempt's commands.
// Validation variables are only set once a previous attempt exists, and
// the gaps variable only when that attempt reported gaps.
func (c AttemptContext) Env() map[string]string {
	env := map[string]string{
		EnvAttempt:        strconv.Itoa(c.Attempt),
		EnvContextVersion: strconv.Itoa(c.Version),
	}
	if p := c.Previous; p != nil {
		env[EnvScore] = formatScore(p.Score)
		env[EnvOutput] = p.ValidationOutput
		if g := gapsValue(p); g != "" {
			env[EnvGaps] = g
		}
	}
	return env
}

// Render substitutes ${name} references to known variables. Unknown
// references are left untouched so shell parameter expansions survive.
func (c AttemptContext) Render(template string) string {
	return Render(template, c.Vars())
}

// Render substitutes ${name} references found in vars. Each non-empty value
// is shell-quoted into a single word, so templates must not wrap references
// in quotes of their own. Empty values render as nothing.
func Render(template string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(template, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := vars[name]
		if !ok {
			return ref
		}
		if v == "" {
			return ""
		}
		return shellescape.Quote(v)
	})
}

// formatScore renders NoScore as 0, matching how it compares to the
// threshold. ${validation.scored} tells the two apart.
func formatScore(s Score) string {
	return strconv.FormatFloat(s.OrZero(), 'f', -1, 64)
}

// gapsValue prefers the validator's own JSON; otherwise gaps are encoded as
// a JSON array.
func gapsValue(a *Attempt) string {
	if a.RawGaps != "" {
		return a.RawGaps
	}
	if len(a.Gaps) == 0 {
		return ""
	}
	b, err := json.Marshal(a.Gaps)
	if err != nil {
		return ""
	}
	return string(b)
}
