package domain

import "fmt"

// Platform identifies an external ad platform.
type Platform string

const (
	PlatformMeta   Platform = "meta"
	PlatformGoogle Platform = "google"
	PlatformX      Platform = "x"
)

// Platforms returns every supported ad platform.
func Platforms() []Platform {
	return []Platform{PlatformMeta, PlatformGoogle, PlatformX}
}

// ParsePlatform validates a platform name taken from a URL or config.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
	return p, nil
}

// IsValid reports whether p is one of the supported platforms.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformMeta, PlatformGoogle, PlatformX:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable name for a platform.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformMeta:
		return "Meta"
	case PlatformGoogle:
		return "Google Ads"
	case PlatformX:
		return "X"
	default:
		return string(p)
	}
}

func (p Platform) String() string {
	return string(p)
}
