package envelope

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Sign attaches signer and sig to the unsigned projection of e: sig is
// the Ed25519 signature over the hex-decoded envelope hash, signer is
// the hex-encoded public key.
func Sign(e Envelope, priv ed25519.PrivateKey) (Envelope, error) {
	unsigned := e.stripSig()
	digestHex, err := Hash(unsigned)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign: %w", err)
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return Envelope{}, fmt.Errorf("sign: decode digest: %w", err)
	}

	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return Envelope{}, fmt.Errorf("sign: invalid private key")
	}

	sig := ed25519.Sign(priv, digest)
	unsigned.Signer = hex.EncodeToString(pub)
	unsigned.Sig = hex.EncodeToString(sig)
	return unsigned, nil
}

// VerifyError enumerates why Verify rejected an envelope.
type VerifyError string

const (
	ErrMalformedHex  VerifyError = "malformed_hex"
	ErrWrongLength   VerifyError = "wrong_length"
	ErrBadSignature  VerifyError = "bad_sig"
	ErrMissingFields VerifyError = "missing_fields"
)

func (e VerifyError) Error() string { return string(e) }

// Verify recomputes the canonical bytes of the unsigned projection of e
// and checks e.Sig against e.Signer. It never panics on malformed input;
// every failure mode is returned as a VerifyError.
func Verify(e Envelope) error {
	if e.Signer == "" || e.Sig == "" {
		return ErrMissingFields
	}

	pubBytes, err := hex.DecodeString(e.Signer)
	if err != nil {
		return ErrMalformedHex
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return ErrWrongLength
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return ErrMalformedHex
	}
	if len(sigBytes) != ed25519.SignatureSize {
		return ErrWrongLength
	}

	unsigned := e.stripSig()
	digestHex, err := Hash(unsigned)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return fmt.Errorf("verify: decode digest: %w", err)
	}

	if !ed25519.Verify(ed25519.PublicKey(pubBytes), digest, sigBytes) {
		return ErrBadSignature
	}
	return nil
}
