package reconcile

import (
	"os"
	"path/filepath"

	"mediasync/internal/fileutil"
)

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}

// removeSiblings deletes every on-disk file sharing the stem under the
// download directory, returned paths included for logging.
func (r *Reconciler) removeSiblings(stem string) ([]string, error) {
	return fileutil.RemoveSiblings(r.fs, filepath.Join(r.downloadDir, stem))
}
