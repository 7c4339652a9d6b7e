//go:build !linux

package disk

import (
	"fmt"
	"os"
)

// DetectSize returns the size in bytes of a regular file.
func DetectSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}

	return info.Size(), nil
}
