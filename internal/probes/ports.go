package probes

import (
	"context"
	"net"
	"sort"
	"strconv"
	"time"
)

// TCPPortProbe reports listening state via a short-timeout TCP dial to
// localhost, cross-platform and privilege-free. PID/process-name attribution
// is left to the OS-specific ListeningSocketProbe, which correlates by port.
type TCPPortProbe struct {
	DialTimeout time.Duration
	sockets     ListeningSocketProbe // optional, for PID/name enrichment
}

func NewTCPPortProbe(sockets ListeningSocketProbe) *TCPPortProbe {
	return &TCPPortProbe{DialTimeout: 300 * time.Millisecond, sockets: sockets}
}

func (p *TCPPortProbe) SamplePorts(ctx context.Context, ports []int, required map[int]bool) ([]PortStatus, error) {
	var byPort map[int]ListeningSocket
	if p.sockets != nil {
		if socks, err := p.sockets.ListeningSockets(ctx, 0); err == nil {
			byPort = make(map[int]ListeningSocket, len(socks))
			for _, s := range socks {
				if _, exists := byPort[s.Port]; !exists {
					byPort[s.Port] = s
				}
			}
		}
	}

	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}

	out := make([]PortStatus, 0, len(ports))
	for _, port := range ports {
		status := PortStatus{Port: port, Required: required[port]}
		if sock, ok := byPort[port]; ok {
			status.Listening = true
			status.PID = sock.PID
			status.ProcessName = sock.ProcessName
		} else {
			status.Listening = dialListening(port, timeout)
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out, nil
}

func dialListening(port int, timeout time.Duration) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
