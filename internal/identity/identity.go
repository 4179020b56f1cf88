// Package identity resolves the identity behind an authentication frame.
// Roles are always read from the store; anything the client claims is ignored.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eduhub/internal/logger"
	"eduhub/pkg/interfaces"
	"eduhub/pkg/types"
)

// Resolver maps an authentication credential to a stored identity. It never
// caches: every authentication event reads the store.
type Resolver struct {
	store    interfaces.IdentityStore
	verifier *TokenVerifier
	log      *slog.Logger
}

// NewResolver creates a resolver. A nil verifier means the credential is the
// external ID itself, validated upstream.
func NewResolver(store interfaces.IdentityStore, verifier *TokenVerifier) *Resolver {
	return &Resolver{
		store:    store,
		verifier: verifier,
		log:      logger.Component("identity"),
	}
}

// Authenticate turns the credential of an auth frame into an identity.
func (r *Resolver) Authenticate(ctx context.Context, credential string) (types.Identity, error) {
	if credential == "" {
		return types.Identity{}, fmt.Errorf("%w: %w", types.ErrAuthenticationFailure, ErrMissingCredential)
	}

	externalID := credential
	if r.verifier != nil {
		subject, err := r.verifier.Verify(credential)
		if err != nil {
			return types.Identity{}, err
		}
		externalID = subject
	}
	return r.Resolve(ctx, externalID)
}

// Resolve reads the identity of externalID from the store. Unknown IDs fail
// closed with ErrAuthenticationFailure; any other store error is ErrPersistence.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (types.Identity, error) {
	identity, err := r.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return types.Identity{}, fmt.Errorf("%w: %w", types.ErrAuthenticationFailure, ErrUnknownIdentity)
		}
		r.log.Error("failed to resolve identity", slog.String("external_id", externalID), slog.Any("error", err))
		return types.Identity{}, fmt.Errorf("%w: %w", types.ErrPersistence, err)
	}

	resolved := *identity
	resolved.Role = types.ParseRole(string(resolved.Role))
	if resolved.ExternalID == "" {
		resolved.ExternalID = externalID
	}
	return resolved, nil
}
