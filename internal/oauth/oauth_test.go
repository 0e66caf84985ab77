package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/fleetwire/controlplane/internal/auth"
	"github.com/fleetwire/controlplane/internal/store"
)

func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestRegisterRejectsNonHTTPSRedirect(t *testing.T) {
	ds := store.NewMem()
	_, _, err := Register(context.Background(), ds, RegisterInput{
		Name:         "bad-client",
		RedirectURIs: []string{"http://example.com/cb"},
		GrantTypes:   []string{"authorization_code"},
	})
	if err != ErrInvalidRedirectURI {
		t.Fatalf("expected ErrInvalidRedirectURI, got %v", err)
	}
}

func TestRegisterServiceAccountRequiresSubject(t *testing.T) {
	ds := store.NewMem()
	_, _, err := Register(context.Background(), ds, RegisterInput{
		Name:       "svc",
		GrantTypes: []string{"client_credentials"},
	})
	if err != ErrServiceAccountRequiresSubject {
		t.Fatalf("expected ErrServiceAccountRequiresSubject, got %v", err)
	}
}

func TestPKCERoundTrip(t *testing.T) {
	ds := store.NewMem()
	client, _, err := Register(context.Background(), ds, RegisterInput{
		Name:         "cli",
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes:   []string{"authorization_code"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	verifier := "a-sufficiently-long-random-verifier-string-1234567890"
	challenge := challengeFor(verifier)

	pending, err := CreatePending(context.Background(), ds, client.ID, client.RedirectURIs[0], "xyz-state", challenge, "S256", []string{"mcp:full"})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	consumed, err := ConsumePending(context.Background(), ds, pending.ID)
	if err != nil {
		t.Fatalf("consume pending: %v", err)
	}
	code, err := MintCode(context.Background(), ds, consumed, "user-1")
	if err != nil {
		t.Fatalf("mint code: %v", err)
	}

	pair, err := ExchangeAuthorizationCode(context.Background(), ds, "tenant-a", client.ID, code, client.RedirectURIs[0], verifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair, got %+v", pair)
	}

	// Wrong verifier must fail with the generic invalid_grant error.
	code2, _ := MintCode(context.Background(), ds, consumed, "user-1")
	_, err = ExchangeAuthorizationCode(context.Background(), ds, "tenant-a", client.ID, code2, client.RedirectURIs[0], "wrong-verifier")
	if err != ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant on PKCE mismatch, got %v", err)
	}
}

func TestPendingAuthorizationSingleUse(t *testing.T) {
	ds := store.NewMem()
	pending, err := CreatePending(context.Background(), ds, "client-1", "https://app.example.com/cb", "state-1", "challenge", "S256", nil)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	if _, err := ConsumePending(context.Background(), ds, pending.ID); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := ConsumePending(context.Background(), ds, pending.ID); err != ErrPendingAlreadyConsumed {
		t.Fatalf("expected ErrPendingAlreadyConsumed on replay, got %v", err)
	}
}

func TestCodeReplayIsRejected(t *testing.T) {
	ds := store.NewMem()
	client, _, _ := Register(context.Background(), ds, RegisterInput{
		Name:         "cli",
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes:   []string{"authorization_code"},
	})

	verifier := "another-sufficiently-long-random-verifier-string"
	challenge := challengeFor(verifier)
	pending, _ := CreatePending(context.Background(), ds, client.ID, client.RedirectURIs[0], "state-2", challenge, "S256", nil)
	consumed, _ := ConsumePending(context.Background(), ds, pending.ID)
	code, _ := MintCode(context.Background(), ds, consumed, "user-2")

	if _, err := ExchangeAuthorizationCode(context.Background(), ds, "tenant-b", client.ID, code, client.RedirectURIs[0], verifier); err != nil {
		t.Fatalf("first exchange: %v", err)
	}

	// Second exchange of the same code must fail generically and must not
	// mint a second token family.
	before := countActiveTokens(t, ds)
	if _, err := ExchangeAuthorizationCode(context.Background(), ds, "tenant-b", client.ID, code, client.RedirectURIs[0], verifier); err != ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant on code replay, got %v", err)
	}
	after := countActiveTokens(t, ds)
	if before != after {
		t.Fatalf("expected token count unchanged on replay, before=%d after=%d", before, after)
	}
}

func TestRefreshRotationMintsNewPairAndRevokesOld(t *testing.T) {
	ds := store.NewMem()
	pair, err := mintPair(context.Background(), ds, "tenant-c", "client-x", "user-3", []string{"mcp:full"}, "", "")
	if err != nil {
		t.Fatalf("mint pair: %v", err)
	}

	rotated, err := RotateRefresh(context.Background(), ds, "tenant-c", pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.FamilyID != pair.FamilyID {
		t.Fatalf("expected rotation to preserve family id, got %s want %s", rotated.FamilyID, pair.FamilyID)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatalf("expected a new refresh token on rotation")
	}
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	ds := store.NewMem()
	pair, err := mintPair(context.Background(), ds, "tenant-d", "client-y", "user-4", []string{"mcp:full"}, "", "")
	if err != nil {
		t.Fatalf("mint pair: %v", err)
	}

	rotated, err := RotateRefresh(context.Background(), ds, "tenant-d", pair.RefreshToken)
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}

	// Replaying the now-revoked original refresh must fail AND revoke the
	// rotated descendant too (family revocation, spec invariant 4).
	if _, err := RotateRefresh(context.Background(), ds, "tenant-d", pair.RefreshToken); err != ErrInvalidGrant {
		t.Fatalf("expected ErrInvalidGrant on refresh replay, got %v", err)
	}

	if _, err := RotateRefresh(context.Background(), ds, "tenant-d", rotated.RefreshToken); err != ErrInvalidGrant {
		t.Fatalf("expected descendant refresh to be revoked by family revocation, got %v", err)
	}
}

func TestRevokeRefreshCascadesToFamily(t *testing.T) {
	ds := store.NewMem()
	pair, err := mintPair(context.Background(), ds, "tenant-e", "client-z", "user-5", []string{"mcp:full"}, "", "")
	if err != nil {
		t.Fatalf("mint pair: %v", err)
	}

	Revoke(context.Background(), ds, pair.RefreshToken)

	if _, err := RotateRefresh(context.Background(), ds, "tenant-e", pair.RefreshToken); err != ErrInvalidGrant {
		t.Fatalf("expected revoked refresh to be rejected, got %v", err)
	}

	// The access token minted alongside it must also be inactive.
	ctx, err := auth.ValidateOAuthAccessToken(context.Background(), ds, pair.AccessToken)
	if err == nil {
		t.Fatalf("expected revoked access token to fail validation, got context %+v", ctx)
	}
}

func countActiveTokens(t *testing.T, ds store.DocStore) int {
	t.Helper()
	docs, err := ds.QueryAll(context.Background(), auth.TokenCollection, store.ListOpts{Limit: 1000})
	if err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	n := 0
	for range docs {
		n++
	}
	return n
}
