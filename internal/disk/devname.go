package disk

import (
	"fmt"
	"math"
)

// IndexToName returns the device letters for a zero-based index: 0 is "a",
// 25 is "z", 26 is "aa", 702 is "aaa". A negative index yields "".
func IndexToName(index int) string {
	var name []byte

	for index >= 0 {
		name = append([]byte{byte('a' + index%26)}, name...)
		index = index/26 - 1
	}

	return string(name)
}

// NameToIndex is the inverse of IndexToName.
func NameToIndex(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidDeviceName)
	}

	acc := 0

	for _, c := range name {
		if c < 'a' || c > 'z' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDeviceName, name)
		}

		if acc > (math.MaxInt-26)/26 {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDeviceName, name)
		}

		acc = acc*26 + int(c-'a') + 1
	}

	return acc - 1, nil
}
