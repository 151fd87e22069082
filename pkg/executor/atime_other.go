//go:build !linux && !darwin

package executor

import (
	"os"
	"time"
)

// accessTime falls back to the modification time where the platform stat is not known
func accessTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
