package cleaner

import "os"

// killProcess terminates the process with the given pid using the
// portable os.Process.Kill, which maps to TerminateProcess on Windows and
// SIGKILL on Unix.
func killProcess(pid uint32) error {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return err
	}
	return proc.Kill()
}
