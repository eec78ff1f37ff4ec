package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("log-20260823-1000.jsonl1754042400" + pub.String())
	sig, err := Sign(priv, msg)
	require.NoError(t, err)

	assert.True(t, sig.Verify(pub, msg))
	assert.False(t, sig.Verify(pub, []byte("tampered")))

	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, sig.Verify(otherPub, msg))
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := NewPublicKeyFromString(pub.String())
	require.NoError(t, err)
	assert.Equal(t, pub.Bytes(), parsed.Bytes())
}

func TestNewPublicKeyFromStringRejectsBadInput(t *testing.T) {
	_, err := NewPublicKeyFromString("not hex")
	assert.Error(t, err)

	_, err = NewPublicKeyFromString("deadbeef")
	assert.Error(t, err, "wrong key size")
}

func TestPrivateKeyDerivesPublicKey(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	derived, err := priv.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, pub.Bytes(), derived.Bytes())
}

func TestSignatureHexRoundTrip(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	sig, err := Sign(priv, []byte("msg"))
	require.NoError(t, err)

	parsed, err := NewSignatureFromString(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig.Bytes(), parsed.Bytes())
}
