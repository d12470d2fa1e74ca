package signing_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/blake2b"

	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
)

type SigningSuite struct {
	suite.Suite
	keyring *signing.Keyring
	signer  *signing.Signer
}

func TestSigningSuite(t *testing.T) {
	suite.Run(t, new(SigningSuite))
}

func (s *SigningSuite) SetupTest() {
	s.keyring = signing.NewKeyring()
	signer, err := signing.NewSigner("ConveyItAll")
	s.Require().NoError(err)
	s.signer = signer
	s.keyring.Register(signer.Party(), signer.Public())
}

func (s *SigningSuite) TestSignAndVerify() {
	digest := blake2b.Sum256([]byte("payload"))

	sig, err := s.signer.Sign(digest)
	s.Require().NoError(err)
	s.NoError(s.keyring.Verify("ConveyItAll", sig, digest))
}

func (s *SigningSuite) TestVerifyRejectsWrongDigest() {
	digest := blake2b.Sum256([]byte("payload"))
	other := blake2b.Sum256([]byte("tampered"))

	sig, err := s.signer.Sign(digest)
	s.Require().NoError(err)
	s.Error(s.keyring.Verify("ConveyItAll", sig, other))
}

func (s *SigningSuite) TestVerifyRejectsWrongParty() {
	digest := blake2b.Sum256([]byte("payload"))

	impostor, err := signing.NewSigner("Impostor")
	s.Require().NoError(err)
	s.keyring.Register("Impostor", impostor.Public())

	sig, err := impostor.Sign(digest)
	s.Require().NoError(err)

	// The token is valid for Impostor but must not pass as ConveyItAll.
	s.Error(s.keyring.Verify("ConveyItAll", sig, digest))
}

func (s *SigningSuite) TestVerifyRejectsUnknownParty() {
	digest := blake2b.Sum256([]byte("payload"))
	sig, err := s.signer.Sign(digest)
	s.Require().NoError(err)

	err = s.keyring.Verify(id.PartyID("Nobody"), sig, digest)
	s.Error(err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	signer, err := signing.NewSigner("P")
	require.NoError(t, err)

	digest := blake2b.Sum256([]byte("x"))
	require.Error(t, signing.Verify(signer.Public(), "not-a-jws", digest, "P"))
}
