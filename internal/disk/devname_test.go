package disk

import (
	"errors"
	"strings"
	"testing"
)

func TestIndexToName(t *testing.T) {
	tests := map[int]string{
		0:     "a",
		1:     "b",
		25:    "z",
		26:    "aa",
		27:    "ab",
		701:   "zz",
		702:   "aaa",
		18277: "zzz",
	}

	for index, want := range tests {
		if got := IndexToName(index); got != want {
			t.Errorf("IndexToName(%d) = %q, want %q", index, got, want)
		}

		got, err := NameToIndex(want)
		if err != nil {
			t.Fatalf("NameToIndex(%q) error = %v", want, err)
		}
		if got != index {
			t.Errorf("NameToIndex(%q) = %d, want %d", want, got, index)
		}
	}
}

func TestIndexToNameNegative(t *testing.T) {
	if got := IndexToName(-1); got != "" {
		t.Errorf("IndexToName(-1) = %q, want empty", got)
	}
}

func TestIndexToNameAndBack(t *testing.T) {
	for i := 0; i <= 18277; i++ {
		name := IndexToName(i)

		got, err := NameToIndex(name)
		if err != nil {
			t.Fatalf("NameToIndex(%q) error = %v", name, err)
		}
		if got != i {
			t.Fatalf("NameToIndex(IndexToName(%d)) = %d", i, got)
		}
		if IndexToName(got) != name {
			t.Fatalf("IndexToName(NameToIndex(%q)) = %q", name, IndexToName(got))
		}
	}
}

func TestNameToIndexInvalid(t *testing.T) {
	for _, name := range []string{"", "A", "a1", "sda!", "é"} {
		if _, err := NameToIndex(name); !errors.Is(err, ErrInvalidDeviceName) {
			t.Errorf("NameToIndex(%q) error = %v, want ErrInvalidDeviceName", name, err)
		}
	}
}

func TestNameToIndexOverflow(t *testing.T) {
	if _, err := NameToIndex(strings.Repeat("z", 15)); !errors.Is(err, ErrInvalidDeviceName) {
		t.Errorf("NameToIndex of 15 letters error = %v, want ErrInvalidDeviceName", err)
	}

	index, err := NameToIndex(strings.Repeat("z", 13))
	if err != nil {
		t.Fatalf("NameToIndex of 13 letters: %v", err)
	}

	if index < 0 || IndexToName(index) != strings.Repeat("z", 13) {
		t.Errorf("NameToIndex of 13 letters = %d, want a non-negative round trip", index)
	}
}
