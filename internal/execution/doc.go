// Package execution runs action and validation commands for the goal-seeking
// engine.
//
// The Executor interface is the only capability the engine needs from the
// outside world. ShellExecutor spawns real processes through a POSIX shell;
// ScriptedExecutor replays canned results by invocation index so the engine's
// state machine can be tested without spawning anything.
//
// # Contract
//
// Execute returns a Result for every command that was started, whatever its
// exit status. It returns a *LaunchError (errors.Is(err, ErrLaunch)) only when
// the command could not be started at all: the shell is missing, the target
// binary is not found, or it is not executable.
//
// A command that outlives its deadline is terminated and reported with
// Result.TimedOut set. The deadline is the earlier of the request's Timeout and
// the context deadline, so the engine's session budget cancels a command that
// is still in flight.
package execution
