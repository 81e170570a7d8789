package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_SignVerify_RoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	payload := []byte("proposal-payload")
	sig, err := Sign(payload, kp)
	require.NoError(t, err)
	require.True(t, Verify(sig, payload))
	require.False(t, Verify(sig, []byte("tampered")))
}

func Test_Verify_InvalidSignatureLengthFailsClosed(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	require.False(t, VerifyWithKey(kp.Public, []byte("x"), []byte("short")))
}

func Test_Sum256_IgnoresNothingDeterministic(t *testing.T) {
	h1 := Sum256([]byte("abc"))
	h2 := Sum256([]byte("abc"))
	h3 := Sum256([]byte("abd"))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func Test_PublicKey_LexicographicOrder(t *testing.T) {
	var a, b PublicKey
	a[0] = 1
	b[0] = 2
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func Test_HashFromBytes_RejectsWrongLength(t *testing.T) {
	_, err := HashFromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKey)
}
