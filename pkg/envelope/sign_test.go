package envelope_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/swapbroker/swapd/pkg/envelope"
)

// I3. Signature verification: produced envelopes verify; mutating body
// or swapping signer breaks verification.
func TestSignThenVerify(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signed, err := envelope.Sign(sampleRFQ(), priv)
	require.NoError(t, err)
	require.True(t, signed.IsSigned())
	require.NoError(t, envelope.Verify(signed))
}

func TestVerifyFailsOnMutatedBody(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signed, err := envelope.Sign(sampleRFQ(), priv)
	require.NoError(t, err)

	signed.Body["usdt_amount"] = "670001"
	require.ErrorIs(t, envelope.Verify(signed), envelope.ErrBadSignature)
}

// S6. Envelope tamper: flipping a single bit of body.usdt_amount yields
// verify=false.
func TestVerifyFailsOnBitFlip(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	quote := sampleQuote()
	signed, err := envelope.Sign(quote, priv)
	require.NoError(t, err)

	amount := signed.Body["usdt_amount"].(string)
	flipped := []byte(amount)
	flipped[0] ^= 0x01
	signed.Body["usdt_amount"] = string(flipped)

	require.ErrorIs(t, envelope.Verify(signed), envelope.ErrBadSignature)
}

func TestVerifyFailsOnSwappedSigner(t *testing.T) {
	_, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signed, err := envelope.Sign(sampleRFQ(), priv1)
	require.NoError(t, err)

	signed.Signer = hexEncode(otherPub)
	require.ErrorIs(t, envelope.Verify(signed), envelope.ErrBadSignature)
}

func TestVerifyRejectsMalformedHex(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signed, err := envelope.Sign(sampleRFQ(), priv)
	require.NoError(t, err)

	signed.Sig = "not-hex"
	require.ErrorIs(t, envelope.Verify(signed), envelope.ErrMalformedHex)
}

func TestVerifyRejectsWrongLength(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signed, err := envelope.Sign(sampleRFQ(), priv)
	require.NoError(t, err)

	signed.Sig = signed.Sig[:10]
	require.ErrorIs(t, envelope.Verify(signed), envelope.ErrWrongLength)
}

func TestVerifyRejectsUnsignedEnvelope(t *testing.T) {
	require.ErrorIs(t, envelope.Verify(sampleRFQ()), envelope.ErrMissingFields)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
