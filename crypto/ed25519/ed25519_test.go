package ed25519

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenKeys()
	require.NoError(t, err)
	assert.True(t, priv.PubKey().Equals(pub))

	msg := []byte("hello")
	sig, err := priv.Sign(msg)
	require.NoError(t, err)
	assert.True(t, pub.VerifySignature(msg, sig))
	assert.False(t, pub.VerifySignature([]byte("world"), sig))
	assert.False(t, pub.VerifySignature(msg, sig[:10]))

	otherPub, _, err := GenKeys()
	require.NoError(t, err)
	assert.False(t, otherPub.VerifySignature(msg, sig))
}

func TestKeyFromSeed(t *testing.T) {
	pub1, priv1 := KeyFromSeed([]byte("seed"))
	pub2, priv2 := KeyFromSeed([]byte("seed"))
	pub3, _ := KeyFromSeed([]byte("other seed"))

	assert.True(t, pub1.Equals(pub2))
	assert.True(t, priv1.Equals(priv2))
	assert.False(t, pub1.Equals(pub3))
}

func TestBytesToPubKey(t *testing.T) {
	pub, _, err := GenKeys()
	require.NoError(t, err)

	key, err := BytesToPubKey(pub.Bytes())
	require.NoError(t, err)
	assert.True(t, key.Equals(pub))

	_, err = BytesToPubKey([]byte{1, 2, 3})
	require.Error(t, err)
}
