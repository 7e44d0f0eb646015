package mmapkv

import (
	"os"

	"github.com/sirgallo/dnstrie/internal/log"
)

// recoverCrashedFiles resolves the sidecar files swap() may have left
// behind after a crash between its write-temp, replace, and open-new
// steps (§6.2 crash recovery):
//
//   - target missing, <target>.tmp present: the process died after
//     writing the temp file but before replaceAtomically ran. Promote
//     the temp file.
//   - target missing, <target>.bak present: the process died mid
//     rename, after the backup hardlink but before (or during) the
//     rename landing. Promote the backup.
//   - target present, stray <target>.tmp present: a completed swap left
//     an orphaned temp file (process died before the deferred removal
//     ran). Delete it; the target is already authoritative.
func recoverCrashedFiles(target string) error {
	tmpPath := target + ".tmp"
	backupPath := target + ".bak"

	_, targetErr := os.Stat(target)
	targetMissing := os.IsNotExist(targetErr)

	if targetMissing {
		if _, err := os.Stat(tmpPath); err == nil {
			log.Warn("mmapkv.recovery").Str("path", target).Msg("promoting orphaned .tmp after crash")
			return os.Rename(tmpPath, target)
		}
		if _, err := os.Stat(backupPath); err == nil {
			log.Warn("mmapkv.recovery").Str("path", target).Msg("promoting .bak after crash")
			return os.Rename(backupPath, target)
		}
		return nil
	}

	if _, err := os.Stat(tmpPath); err == nil {
		log.Warn("mmapkv.recovery").Str("path", tmpPath).Msg("deleting stray .tmp, target already authoritative")
		return os.Remove(tmpPath)
	}

	return nil
}
