//go:build linux

package probes

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ProcSocketProbe enumerates listening TCP sockets from /proc/net/tcp(6),
// resolving each inode to an owning PID/process name via /proc/<pid>/fd.
type ProcSocketProbe struct{}

func NewProcSocketProbe() *ProcSocketProbe { return &ProcSocketProbe{} }

const tcpListenState = "0A"

func (p *ProcSocketProbe) ListeningSockets(ctx context.Context, limit int) ([]ListeningSocket, error) {
	inodeToSocket := make(map[string]ListeningSocket)
	for _, path := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		parseNetTCP(path, inodeToSocket)
	}
	if len(inodeToSocket) == 0 {
		return []ListeningSocket{}, nil
	}

	inodeToPID := buildInodeToPID()

	out := make([]ListeningSocket, 0, len(inodeToSocket))
	seen := make(map[string]bool)
	for inode, sock := range inodeToSocket {
		if pid, ok := inodeToPID[inode]; ok {
			sock.PID = pid
			sock.ProcessName = processName(pid)
		}
		key := sock.IP + "|" + strconv.Itoa(sock.Port) + "|" + strconv.Itoa(sock.PID)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sock)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Port != out[j].Port {
			return out[i].Port < out[j].Port
		}
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].PID < out[j].PID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func parseNetTCP(path string, into map[string]ListeningSocket) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		if fields[3] != tcpListenState {
			continue
		}
		localAddr := fields[1]
		parts := strings.SplitN(localAddr, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ip := decodeHexIP(parts[0])
		port, convErr := strconv.ParseInt(parts[1], 16, 32)
		if convErr != nil {
			continue
		}
		inode := fields[9]
		into[inode] = ListeningSocket{IP: ip, Port: int(port)}
	}
}

func decodeHexIP(hexAddr string) string {
	raw, err := decodeHex(hexAddr)
	if err != nil || len(raw) < 4 {
		return "0.0.0.0"
	}
	// /proc/net/tcp stores address bytes in host byte order (little-endian).
	return strconv.Itoa(int(raw[3])) + "." + strconv.Itoa(int(raw[2])) + "." +
		strconv.Itoa(int(raw[1])) + "." + strconv.Itoa(int(raw[0]))
}

func decodeHex(s string) ([]byte, error) {
	if len(s) < 8 {
		s = strings.Repeat("0", 8-len(s)) + s
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func buildInodeToPID() map[string]int {
	result := make(map[string]int)
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return result
	}
	for _, e := range entries {
		pid, convErr := strconv.Atoi(e.Name())
		if convErr != nil {
			continue
		}
		fdDir := "/proc/" + e.Name() + "/fd"
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(fdDir + "/" + fd.Name())
			if err != nil {
				continue
			}
			if strings.HasPrefix(link, "socket:[") {
				inode := strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]")
				if _, exists := result[inode]; !exists {
					result[inode] = pid
				}
			}
		}
	}
	return result
}

func processName(pid int) string {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
