package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/vpk/internal/vpktype"
)

const (
	dirSuffix = "dir.vpk"
	vpkExt    = ".vpk"
)

// DirName returns the index file name for base: "base_dir.vpk".
func DirName(base string) string {
	return base + "_" + dirSuffix
}

// DataName returns the name of data file i for base: "base_NNN.vpk".
func DataName(base string, i int) string {
	return fmt.Sprintf("%s_%03d%s", base, i, vpkExt)
}

// Prefix strips the "dir.vpk" or "NNN.vpk" suffix from an archive path,
// keeping the trailing underscore. Data file i lives at DataPath(prefix, i).
func Prefix(path string) (string, error) {
	name := filepath.Base(path)
	if strings.HasSuffix(name, "_"+dirSuffix) {
		return strings.TrimSuffix(path, dirSuffix), nil
	}
	if len(name) >= 8 && strings.HasSuffix(name, vpkExt) {
		digits := name[len(name)-7 : len(name)-4]
		if name[len(name)-8] == '_' && isDigits(digits) {
			return path[:len(path)-7], nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a _dir.vpk or _NNN.vpk path", vpktype.ErrMalformedData, path)
}

// DataPath returns the path of data file i given a Prefix result.
func DataPath(prefix string, i int) string {
	return fmt.Sprintf("%s%03d%s", prefix, i, vpkExt)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
