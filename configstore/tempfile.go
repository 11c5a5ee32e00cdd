package configstore

import "strings"

// IsTemporaryFile returns true if name looks like an editor swap file or a
// leftover from an interrupted atomic write. It only classifies a name; no
// code in this repository scans a directory with it.
func IsTemporaryFile(name string) bool {
	return strings.HasSuffix(name, "~") || // vim
		strings.HasPrefix(name, ".#") || // emacs
		strings.HasPrefix(name, ".tmp-") || // configstore's own temp files
		(strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#")) // emacs
}
