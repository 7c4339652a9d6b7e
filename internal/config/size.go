package config

import (
	"fmt"
	"strconv"

	"github.com/larsks/vmbuild/internal/disk"
)

// Size is a size in megabytes. In TOML files it is either an integer or a
// string with a K, M or G suffix; on the command line it is always the
// latter.
type Size int64

// UnmarshalTOML implements toml.Unmarshaler.
func (s *Size) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case int64:
		if v < 0 {
			return fmt.Errorf("%w: %d", disk.ErrInvalidSizeFormat, v)
		}
		*s = Size(v)
	case string:
		return s.Set(v)
	default:
		return fmt.Errorf("%w: %v", disk.ErrInvalidSizeFormat, v)
	}

	return nil
}

// String implements pflag.Value.
func (s *Size) String() string {
	return strconv.FormatInt(int64(*s), 10)
}

// Set implements pflag.Value.
func (s *Size) Set(v string) error {
	n, err := disk.ParseSize(v)
	if err != nil {
		return err
	}

	*s = Size(n)

	return nil
}

// Type implements pflag.Value.
func (s *Size) Type() string {
	return "size"
}
