// Package signing provides the opaque signer capability the rules and notary
// rely on: a party identity, a detached signature over a record digest, and
// verification against the party's registered key. Signatures are compact
// EdDSA JWS tokens so they stay printable inside record fields.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

// Signature is a compact JWS produced by a party over a digest.
type Signature = string

// Keyring maps party identities to their verification keys. In production
// the network map would populate it; tests register keys directly.
type Keyring struct {
	mu   sync.RWMutex
	keys map[id.PartyID]ed25519.PublicKey
}

func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[id.PartyID]ed25519.PublicKey)}
}

func (k *Keyring) Register(party id.PartyID, key ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[party] = key
}

func (k *Keyring) PublicKey(party id.PartyID) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[party]
	if !ok {
		return nil, fmt.Errorf("no key registered for %s: %w", party, sentinel.ErrNotFound)
	}
	return key, nil
}

// Verify checks that sig is party's signature over digest.
func (k *Keyring) Verify(party id.PartyID, sig Signature, digest [32]byte) error {
	key, err := k.PublicKey(party)
	if err != nil {
		return err
	}
	return Verify(key, sig, digest, party)
}

// Signer holds one party's private key.
type Signer struct {
	party id.PartyID
	key   ed25519.PrivateKey
	pub   ed25519.PublicKey
}

// NewSigner generates a fresh keypair for the party.
func NewSigner(party id.PartyID) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", party, err)
	}
	return &Signer{party: party, key: priv, pub: pub}, nil
}

func (s *Signer) Party() id.PartyID         { return s.party }
func (s *Signer) Public() ed25519.PublicKey { return s.pub }

type digestClaims struct {
	Digest string `json:"dig"`
	jwt.RegisteredClaims
}

// Sign produces a detached signature over digest.
func (s *Signer) Sign(digest [32]byte) (Signature, error) {
	claims := digestClaims{
		Digest: base64.RawURLEncoding.EncodeToString(digest[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: s.party.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	return signed, nil
}

// Verify checks a detached signature against a public key, the expected
// digest and the expected signing party.
func Verify(key ed25519.PublicKey, sig Signature, digest [32]byte, party id.PartyID) error {
	var claims digestClaims
	token, err := jwt.ParseWithClaims(sig, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("signature invalid")
	}
	if claims.Subject != party.String() {
		return fmt.Errorf("signature from %s, expected %s", claims.Subject, party)
	}
	want := base64.RawURLEncoding.EncodeToString(digest[:])
	if claims.Digest != want {
		return fmt.Errorf("signature covers a different digest")
	}
	return nil
}
