package domain

import (
	"errors"
	"testing"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"meta", PlatformMeta, false},
		{"google", PlatformGoogle, false},
		{"x", PlatformX, false},
		{"twitter", "", true},
		{"", "", true},
		{"META", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlatform(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedPlatform) {
					t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPlatforms_AllValid(t *testing.T) {
	platforms := Platforms()
	if len(platforms) != 3 {
		t.Fatalf("expected 3 platforms, got %d", len(platforms))
	}
	for _, p := range platforms {
		if !p.IsValid() {
			t.Errorf("platform %s should be valid", p)
		}
		if p.DisplayName() == "" {
			t.Errorf("platform %s has no display name", p)
		}
	}
}

func TestPlatform_DisplayName(t *testing.T) {
	if PlatformMeta.DisplayName() != "Meta" {
		t.Errorf("got %q", PlatformMeta.DisplayName())
	}
	if PlatformGoogle.DisplayName() != "Google Ads" {
		t.Errorf("got %q", PlatformGoogle.DisplayName())
	}
	if Platform("other").DisplayName() != "other" {
		t.Errorf("unknown platforms should fall back to their raw name")
	}
}
