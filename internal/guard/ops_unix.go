//go:build unix

package guard

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// SystemOps implements ProcessOps for unix-like systems. Enumeration shells
// out to ps, which is portable across Linux and macOS without cgo.
type SystemOps struct{}

func NewSystemOps() *SystemOps { return &SystemOps{} }

func (*SystemOps) List(ctx context.Context) ([]ProcessInfo, error) {
	out, err := exec.CommandContext(ctx, "ps", "-eo", "pid=,comm=").Output()
	if err != nil {
		return nil, err
	}

	var procs []ProcessInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, ProcessInfo{PID: pid, Name: strings.Join(fields[1:], " ")})
	}
	return procs, scanner.Err()
}

func (*SystemOps) Terminate(pid int) error {
	return signalProcess(pid, syscall.SIGTERM)
}

func (*SystemOps) Kill(pid int) error {
	return signalProcess(pid, syscall.SIGKILL)
}

func signalProcess(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
