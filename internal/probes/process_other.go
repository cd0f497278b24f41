//go:build !linux

package probes

import "context"

// ProcProcessProbe is the non-Linux stub.
type ProcProcessProbe struct{}

func NewProcProcessProbe() *ProcProcessProbe { return &ProcProcessProbe{} }

func (p *ProcProcessProbe) TopProcesses(ctx context.Context, n int) ([]ProcessRow, error) {
	return nil, ErrUnsupportedPlatform
}
