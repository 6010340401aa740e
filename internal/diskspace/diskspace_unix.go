//go:build !windows

package diskspace

import "golang.org/x/sys/unix"

func available(dir string) (int64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, false
	}
	// Bavail: blocks available to unprivileged users
	return int64(stat.Bavail) * int64(stat.Bsize), true
}
