// Package hostinfo samples host and process statistics from procfs.
package hostinfo

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// Snapshot is one reading of the host.
type Snapshot struct {
	CPUPercent float64
	MemTotal   uint64
	MemUsed    uint64
	MemPercent float64
	Load1      float64
	Load5      float64
	Load15     float64
	// ProcessRSS is the resident set size of this process.
	ProcessRSS uint64
}

// Sampler reads procfs. CPU usage is the delta since the previous Sample, so
// a Sampler is meant to live as long as the process.
type Sampler struct {
	proc     fs.FS
	cpuModel string

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

// NewSampler reads from /proc.
func NewSampler() *Sampler {
	return newSampler(os.DirFS("/proc"))
}

func newSampler(proc fs.FS) *Sampler {
	s := &Sampler{proc: proc}
	s.cpuModel = s.readCPUModel()
	s.prevIdle, s.prevTotal, _ = s.readCPUTicks()
	return s
}

// CPUModel is the "model name" of the first CPU, or "Unknown".
func (s *Sampler) CPUModel() string { return s.cpuModel }

// Sample takes a reading. Sources that cannot be read leave their fields zero.
func (s *Sampler) Sample() Snapshot {
	var snap Snapshot

	if idle, total, err := s.readCPUTicks(); err == nil {
		s.mu.Lock()
		if total > s.prevTotal {
			snap.CPUPercent = (1 - float64(idle-s.prevIdle)/float64(total-s.prevTotal)) * 100
			s.prevIdle, s.prevTotal = idle, total
		}
		s.mu.Unlock()
	}

	if mem, err := s.readKeyed("meminfo", "MemTotal", "MemAvailable"); err == nil && mem["MemTotal"] > 0 {
		snap.MemTotal = mem["MemTotal"]
		snap.MemUsed = mem["MemTotal"] - mem["MemAvailable"]
		snap.MemPercent = float64(snap.MemUsed) / float64(snap.MemTotal) * 100
	}

	snap.Load1, snap.Load5, snap.Load15, _ = s.readLoadAvg()

	if status, err := s.readKeyed("self/status", "VmRSS"); err == nil {
		snap.ProcessRSS = status["VmRSS"]
	}

	return snap
}

// DiskUsage reports the size and free space of the filesystem holding path.
func DiskUsage(path string) (total, free uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}

// readCPUTicks sums the aggregate "cpu" line of stat.
func (s *Sampler) readCPUTicks() (idle, total uint64, err error) {
	data, err := fs.ReadFile(s.proc, "stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, errors.New("unexpected stat format")
	}
	// user nice system idle iowait irq softirq steal ...
	for i, f := range fields[1:] {
		v, _ := strconv.ParseUint(f, 10, 64)
		total += v
		if i == 3 {
			idle = v
		}
	}
	return idle, total, nil
}

func (s *Sampler) readCPUModel() string {
	f, err := s.proc.Open("cpuinfo")
	if err != nil {
		return "Unknown"
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(val)
		}
	}
	return "Unknown"
}

// readKeyed parses "Key:   123 kB" lines, returning the wanted keys in bytes
// (or as plain numbers when no unit is given).
func (s *Sampler) readKeyed(name string, keys ...string) (map[string]uint64, error) {
	f, err := s.proc.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]uint64, len(keys))
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(out) < len(keys) {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok || !contains(keys, key) {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if len(fields) > 1 && fields[1] == "kB" {
			v *= 1024
		}
		out[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: none of %v found", name, keys)
	}
	return out, nil
}

func (s *Sampler) readLoadAvg() (l1, l5, l15 float64, err error) {
	data, err := fs.ReadFile(s.proc, "loadavg")
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0, errors.New("unexpected loadavg format")
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15, nil
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
