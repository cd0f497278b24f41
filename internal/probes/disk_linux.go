//go:build linux

package probes

import "syscall"

func statfsUsage(path string) (usedBytes, totalBytes *int64, err error) {
	var stat syscall.Statfs_t
	if statErr := syscall.Statfs(path, &stat); statErr != nil {
		return nil, nil, statErr
	}
	bsize := uint64(stat.Bsize)
	total := int64(stat.Blocks * bsize)
	free := int64(stat.Bavail * bsize)
	used := total - free
	if used < 0 {
		used = 0
	}
	return &used, &total, nil
}
