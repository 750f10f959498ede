// Package goalseek implements the iterative refine-validate-converge loop.
//
// An Engine repeatedly runs an action command, runs a validation command,
// extracts a score from the validator's output and decides whether to stop:
//
//	Init -> Running -> Success | MaxAttemptsReached | Converged | TimedOut | Failed
//
// Each iteration is recorded as an Attempt in a History that the engine owns
// for the duration of one Seek call. Attempts after the first receive the
// previous attempt's score, validation output and gaps as template variables
// and environment variables, so the action can refine its previous work.
//
// Score extraction understands four validator output formats, tried in
// order: a JSON record with a "score" field, a "score: N" label, an "N/M"
// ratio and a bare "N%" token. Scores are clamped to [0, 100]. Output that
// matches none of them yields NoScore, which counts as zero against the
// threshold but stays distinguishable from a real zero.
//
// Convergence is declared when the last three scored attempts lie within
// two points of each other. It is only consulted after the threshold and
// max-attempts checks.
//
// Commands are run through an execution.Executor, so the controller can be
// driven by execution.ScriptedExecutor in tests without spawning processes.
//
// # Usage
//
//	engine := goalseek.NewEngine(execution.NewShellExecutor(),
//	    goalseek.WithLogger(logger),
//	)
//	cfg := goalseek.Config{
//	    Goal:        "test coverage above 80%",
//	    Action:      "claude /improve-coverage",
//	    Validator:   "./scripts/coverage.sh",
//	    Threshold:   80,
//	    MaxAttempts: 5,
//	}
//	result := engine.Seek(ctx, cfg)
//	outcome, err := goalseek.Evaluate(result, cfg)
package goalseek
