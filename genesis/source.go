package genesis

import (
	"fmt"
	"os"
	"strings"

	"indyforge.dev/forge/forgeerr"
)

// Kind distinguishes where genesis transactions come from.
type Kind int

const (
	LocalFile Kind = iota + 1
	URL
)

func (k Kind) String() string {
	switch k {
	case LocalFile:
		return "file"
	case URL:
		return "url"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Source is a resolved genesis location. It is immutable.
type Source struct {
	Kind     Kind
	Location string
}

func (s Source) String() string { return s.Location }

// IsZero reports whether s is the zero Source.
func (s Source) IsZero() bool { return s.Kind == 0 && s.Location == "" }

// Resolve classifies s as a URL (http:// or https:// prefix) or an existing
// local file. Anything else is an InvalidSource input error.
func Resolve(s string) (Source, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return Source{Kind: URL, Location: s}, nil
	}
	if s != "" {
		if _, err := os.Stat(s); err == nil {
			return Source{Kind: LocalFile, Location: s}, nil
		}
	}
	return Source{}, forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSource,
		"Source must be a valid URL or existing file path")
}
