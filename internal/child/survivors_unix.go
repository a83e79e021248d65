//go:build !windows

package child

import (
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// survivors enumerates processes still belonging to the child's group. The
// census is best-effort: pids racing to exit during the scan are skipped.
func survivors(pgid int) []Survivor {
	pids, err := process.Pids()
	if err != nil {
		return nil
	}
	var alive []Survivor
	for _, pid := range pids {
		got, err := syscall.Getpgid(int(pid))
		if err != nil || got != pgid {
			continue
		}
		s := Survivor{PID: int(pid)}
		if proc, err := process.NewProcess(pid); err == nil {
			if name, err := proc.Name(); err == nil {
				s.Name = name
			}
		}
		alive = append(alive, s)
	}
	return alive
}
