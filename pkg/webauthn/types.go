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

package webauthn

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
)

// Ceremony identifies which ceremony a challenge was issued for.
type Ceremony string

const (
	// CeremonyRegistration is the credential creation ceremony.
	CeremonyRegistration Ceremony = "registration"
	// CeremonyAuthentication is the assertion ceremony.
	CeremonyAuthentication Ceremony = "authentication"
)

// Credential is a registered public-key credential bound to one user.
type Credential struct {
	// ID is the credential identifier from the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning account.
	UserID int64 `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the attestation type used.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports the authenticator reported.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags are the authenticator data flags from registration.
	Flags webauthn.CredentialFlags `json:"flags"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// Label is a user-friendly name for this credential.
	Label string `json:"label"`

	// SignCount is the signature counter for clone detection. It only
	// moves forward; a successful authentication stores a strictly
	// greater value.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the credential was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// ToWebAuthn converts the credential to the go-webauthn representation.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Flags:           c.Flags,
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// FromWebAuthnCredential creates a Credential owned by userID from a
// freshly verified go-webauthn credential.
func FromWebAuthnCredential(userID int64, label string, cred *webauthn.Credential) *Credential {
	now := time.Now().UTC()
	return &Credential{
		ID:              cred.ID,
		UserID:          userID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transport:       cred.Transport,
		Flags:           cred.Flags,
		AAGUID:          cred.Authenticator.AAGUID,
		Label:           label,
		SignCount:       cred.Authenticator.SignCount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ceremonyUser adapts a platform account and its stored credentials to
// the webauthn.User interface for the duration of one ceremony.
type ceremonyUser struct {
	account *user.User
	creds   []*Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.account.Handle()
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.account.Email
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.account.FullName == "" {
		return u.account.Email
	}
	return u.account.FullName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}
