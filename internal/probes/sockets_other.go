//go:build !linux

package probes

import "context"

// ProcSocketProbe is the non-Linux stub.
type ProcSocketProbe struct{}

func NewProcSocketProbe() *ProcSocketProbe { return &ProcSocketProbe{} }

func (p *ProcSocketProbe) ListeningSockets(ctx context.Context, limit int) ([]ListeningSocket, error) {
	return nil, ErrUnsupportedPlatform
}
