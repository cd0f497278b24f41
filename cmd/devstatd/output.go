package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	isatty "github.com/mattn/go-isatty"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
)

func shouldUsePrettyOutput(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	fd, ok := fileDescriptor(w)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func fileDescriptor(w io.Writer) (uintptr, bool) {
	type fdWriter interface {
		Fd() uintptr
	}
	f, ok := w.(fdWriter)
	if !ok {
		return 0, false
	}
	return f.Fd(), true
}

func printBanner(w io.Writer, dataDir, version string) {
	if !shouldUsePrettyOutput(w) {
		fmt.Fprintf(w, "devstatd %s starting (data_dir=%s)\n", version, dataDir)
		return
	}
	fmt.Fprintf(w, "%s%sdevstatd %s%s %sdata_dir=%s%s\n", ansiBold, ansiGreen, version, ansiReset, ansiDim, dataDir, ansiReset)
}
