package volumes

import (
	"os"
	"syscall"
)

// blocksUsed returns the actual disk space (in bytes) consumed by a file,
// accounting for sparseness, via the same stat_t.Blocks idiom used elsewhere
// uses for its volume metrics.
func blocksUsed(info os.FileInfo) int64 {
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		return sys.Blocks * 512
	}
	return info.Size()
}
