//go:build windows

package guard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"os/exec"
	"strconv"
	"strings"
)

// SystemOps implements ProcessOps for Windows using tasklist and taskkill.
type SystemOps struct{}

func NewSystemOps() *SystemOps { return &SystemOps{} }

func (*SystemOps) List(ctx context.Context) ([]ProcessInfo, error) {
	out, err := exec.CommandContext(ctx, "tasklist", "/fo", "csv", "/nh").Output()
	if err != nil {
		return nil, err
	}

	var procs []ProcessInfo
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil || len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(record[1])
		if err != nil {
			continue
		}
		procs = append(procs, ProcessInfo{PID: pid, Name: record[0]})
	}
	return procs, scanner.Err()
}

func (*SystemOps) Terminate(pid int) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(pid)).Run()
}

func (*SystemOps) Kill(pid int) error {
	return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
}
