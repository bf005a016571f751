// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of crypto-toolkit.
//
// crypto-toolkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package webauthn implements the platform's strong-authentication
// ceremonies: credential registration and assertion-based login. It
// owns the single-use challenge lifecycle, verifies authenticator
// responses, and enforces strictly increasing signature counters.
package webauthn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
)

// Service provides WebAuthn registration and authentication operations.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	users      user.Store
	creds      CredentialStore
	challenges *ChallengeManager
	configured bool
}

// ServiceParams contains dependencies for creating a WebAuthn service.
type ServiceParams struct {
	// Config is the WebAuthn configuration (required).
	Config *Config

	// Users is the account directory (required).
	Users user.Store

	// Credentials is the credential persistence layer (required).
	Credentials CredentialStore

	// Challenges is the challenge persistence layer (required).
	Challenges ChallengeStore
}

// NewService creates a new WebAuthn service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		users:      params.Users,
		creds:      params.Credentials,
		challenges: NewChallengeManager(params.Challenges, params.Config.ChallengeTTL),
		configured: true,
	}, nil
}

// BeginRegistration starts the registration ceremony for an account.
// Returns the creation options for the client and the issued challenge.
// Already registered credentials are excluded from re-registration.
func (s *Service) BeginRegistration(ctx context.Context, account *user.User) (*protocol.CredentialCreation, *Challenge, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	existing, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, nil, WrapError("get credentials", err)
	}

	excludeList := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		excludeList[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		}
	}

	cu := &ceremonyUser{account: account, creds: existing}
	options, session, err := s.webauthn.BeginRegistration(cu,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, nil, WrapError("begin registration", err)
	}

	ch, err := s.challenges.Issue(ctx, account.ID, CeremonyRegistration, session)
	if err != nil {
		return nil, nil, err
	}

	return options, ch, nil
}

// FinishRegistration completes the registration ceremony. The challenge
// is consumed before verification and stays consumed whether or not
// verification succeeds. On success the new credential is persisted
// with its counter initialized from the authenticator response.
func (s *Service) FinishRegistration(ctx context.Context, account *user.User, challengeID, label string, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	ch, err := s.challenges.Consume(ctx, challengeID, account.ID, CeremonyRegistration)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}

	existing, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}

	cu := &ceremonyUser{account: account, creds: existing}
	credential, err := s.webauthn.CreateCredential(cu, ch.Session, response)
	if err != nil {
		return nil, WrapError("create credential", classifyVerifyError(err))
	}

	if label == "" {
		label = fmt.Sprintf("Credential for %s", account.Email)
	}

	cred := FromWebAuthnCredential(account.ID, label, credential)
	if err := s.creds.Save(ctx, cred); err != nil {
		return nil, WrapError("save credential", err)
	}

	return cred, nil
}

// BeginLogin starts the authentication ceremony for an account. Fails
// with ErrNoCredentials when the account has nothing registered.
func (s *Service) BeginLogin(ctx context.Context, account *user.User) (*protocol.CredentialAssertion, *Challenge, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	creds, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, nil, WrapError("get credentials", err)
	}
	if len(creds) == 0 {
		return nil, nil, ErrNoCredentials
	}

	cu := &ceremonyUser{account: account, creds: creds}
	options, session, err := s.webauthn.BeginLogin(cu)
	if err != nil {
		return nil, nil, WrapError("begin login", err)
	}

	ch, err := s.challenges.Issue(ctx, account.ID, CeremonyAuthentication, session)
	if err != nil {
		return nil, nil, err
	}

	return options, ch, nil
}

// FinishLogin completes the authentication ceremony. The owning account
// is resolved from the credential in the response, and the challenge
// must have been issued to that account; a caller can never substitute
// a challenge issued to someone else. The assertion counter must be
// strictly greater than the stored counter or the login is rejected
// with ErrCounterRegression.
func (s *Service) FinishLogin(ctx context.Context, challengeID string, response *protocol.ParsedCredentialAssertionData) (*user.User, *Credential, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	cred, err := s.creds.GetByCredentialID(ctx, response.RawID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, nil, WrapError("resolve credential", ErrCredentialUnknown)
		}
		return nil, nil, WrapError("resolve credential", err)
	}

	account, err := s.users.GetByID(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil, WrapError("resolve owner", ErrCredentialUnknown)
		}
		return nil, nil, WrapError("resolve owner", err)
	}

	ch, err := s.challenges.Consume(ctx, challengeID, account.ID, CeremonyAuthentication)
	if err != nil {
		return nil, nil, WrapError("consume challenge", err)
	}

	creds, err := s.creds.GetByUserID(ctx, account.ID)
	if err != nil {
		return nil, nil, WrapError("get credentials", err)
	}

	cu := &ceremonyUser{account: account, creds: creds}
	validated, err := s.webauthn.ValidateLogin(cu, ch.Session, response)
	if err != nil {
		return nil, nil, WrapError("validate login", classifyVerifyError(err))
	}

	// The library only flags a non-increasing counter as a clone
	// warning. A cloned credential must never authenticate, so the
	// check here is hard: the new counter has to strictly exceed the
	// stored one, equality included.
	newCount := validated.Authenticator.SignCount
	if validated.Authenticator.CloneWarning || newCount <= cred.SignCount {
		return nil, nil, WrapError("verify counter", ErrCounterRegression)
	}

	if err := s.creds.UpdateSignCount(ctx, cred.ID, newCount); err != nil {
		return nil, nil, WrapError("update sign count", err)
	}

	if err := s.users.TouchLastLogin(ctx, account.ID); err != nil {
		return nil, nil, WrapError("record login", err)
	}

	now := time.Now().UTC()
	account.LastLoginAt = &now
	cred.SignCount = newCount
	cred.UpdatedAt = now
	cred.LastUsedAt = &now

	return account, cred, nil
}

// Credentials retrieves all credentials registered to an account.
func (s *Service) Credentials(ctx context.Context, userID int64) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	return s.creds.GetByUserID(ctx, userID)
}

// GetCredential retrieves a single credential by its ID.
func (s *Service) GetCredential(ctx context.Context, credID []byte) (*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	return s.creds.GetByCredentialID(ctx, credID)
}

// DeleteCredential removes a credential.
func (s *Service) DeleteCredential(ctx context.Context, credID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}

	return s.creds.Delete(ctx, credID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// classifyVerifyError maps a go-webauthn verification failure onto the
// ceremony error taxonomy. The library reports all protocol failures
// through protocol.Error; the failing check is only distinguishable
// from its diagnostic text.
func classifyVerifyError(err error) error {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		info := strings.ToLower(pe.Details + " " + pe.DevInfo)
		switch {
		case strings.Contains(info, "origin"):
			return ErrOriginMismatch
		case strings.Contains(info, "rp id"), strings.Contains(info, "rpid"),
			strings.Contains(info, "rp hash"), strings.Contains(info, "relying party"):
			return ErrRPIDMismatch
		}
	}
	return ErrSignatureInvalid
}
