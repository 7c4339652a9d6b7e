package disk

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegexp = regexp.MustCompile(`^(\d+)([KkMmGg])?$`)

// ParseSize converts a size string to a whole number of megabytes. A bare
// number is already in megabytes; K, M and G suffixes (any case) are
// 1024-based. Kilobyte values are truncated to the megabyte below.
func ParseSize(s string) (int64, error) {
	m := sizeRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSizeFormat, s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSizeFormat, s, err)
	}

	switch strings.ToUpper(m[2]) {
	case "K":
		return n / 1024, nil
	case "G":
		if n > math.MaxInt64/1024 {
			return 0, fmt.Errorf("%w: %q is too large", ErrInvalidSizeFormat, s)
		}

		return n * 1024, nil
	default:
		return n, nil
	}
}
