// Package cleaner executes the remediation action a signature match
// carries: terminate a process by pid, or delete a file by path. Failures
// (the process is already gone, the file is locked) are reported to the
// caller but are never treated as fatal to the scan or event loop that
// triggered them.
package cleaner

import (
	"fmt"
	"os"
)

// Action is a remediation directive produced by a signature match: exactly
// one of Pid (terminate) or Path (delete) is set, mirroring the
// Cleaner::Process/Cleaner::File split a matched rule resolves to.
type Action struct {
	Pid  uint32
	Path string
}

// Process builds a terminate-process action.
func Process(pid uint32) Action { return Action{Pid: pid} }

// File builds a delete-file action.
func File(path string) Action { return Action{Path: path} }

// IsProcess reports whether a names a process to terminate.
func (a Action) IsProcess() bool { return a.Path == "" }

func (a Action) String() string {
	if a.IsProcess() {
		return fmt.Sprintf("terminate(pid=%d)", a.Pid)
	}
	return fmt.Sprintf("delete(%s)", a.Path)
}

// Executor performs Actions. The production Executor calls the host's
// process and filesystem primitives directly; tests substitute a fake that
// records what it was asked to do.
type Executor interface {
	Execute(a Action) error
}

// osExecutor is the production Executor: os.Remove for file actions, the
// platform's process-kill primitive for process actions.
type osExecutor struct {
	kill func(pid uint32) error
}

// NewExecutor returns the default Executor, backed by the host OS.
func NewExecutor() Executor {
	return &osExecutor{kill: killProcess}
}

func (e *osExecutor) Execute(a Action) error {
	if a.IsProcess() {
		if err := e.kill(a.Pid); err != nil {
			return fmt.Errorf("cleaner: terminate pid %d: %w", a.Pid, err)
		}
		return nil
	}
	if err := os.Remove(a.Path); err != nil {
		return fmt.Errorf("cleaner: delete %s: %w", a.Path, err)
	}
	return nil
}
