package platforms

import (
	"context"
	"testing"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

type stubHandler struct {
	platform domain.Platform
}

func (s stubHandler) Platform() domain.Platform { return s.platform }
func (s stubHandler) AuthCodeURL(driven.ClientCredentials, string, string, string) string {
	return ""
}
func (s stubHandler) ExchangeCode(context.Context, driven.ClientCredentials, string, string, string) (*driven.OAuthToken, error) {
	return nil, nil
}
func (s stubHandler) FetchProfile(context.Context, string) (*domain.PlatformProfile, error) {
	return nil, nil
}
func (s stubHandler) SupportsPKCE() bool    { return false }
func (s stubHandler) RequiresAccount() bool { return true }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubHandler{domain.PlatformX}, stubHandler{domain.PlatformMeta})

	if _, ok := r.Get(domain.PlatformMeta); !ok {
		t.Error("expected meta handler")
	}
	if _, ok := r.Get(domain.PlatformGoogle); ok {
		t.Error("expected no google handler")
	}

	got := r.Platforms()
	if len(got) != 2 || got[0] != domain.PlatformMeta || got[1] != domain.PlatformX {
		t.Errorf("expected [meta x], got %v", got)
	}

	r.Register(stubHandler{domain.PlatformGoogle})
	if len(r.Platforms()) != 3 {
		t.Errorf("expected 3 platforms after register, got %d", len(r.Platforms()))
	}
}
