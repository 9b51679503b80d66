//go:build linux || darwin

package manifest

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func changeTime(path string, _ os.FileInfo) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, err
	}
	sec, nsec := st.Ctim.Unix()
	return time.Unix(sec, nsec), nil
}
