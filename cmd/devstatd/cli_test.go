package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRunCLIVersionFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := runCLI([]string{"--version"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out.String(), "devstatd version") {
		t.Fatalf("expected version string in output, got %q", out.String())
	}
}

func TestRunCLIDefaultCallsServe(t *testing.T) {
	orig := serveFn
	t.Cleanup(func() { serveFn = orig })

	called := false
	serveFn = func(_ io.Writer) int {
		called = true
		return 0
	}

	var out, errOut bytes.Buffer
	code := runCLI(nil, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !called {
		t.Fatal("serveFn was not called")
	}
}
