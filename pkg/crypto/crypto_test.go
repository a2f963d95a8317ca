package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkleaf/notesync/pkg/types"
)

func TestSetupUnlockRoundTrip(t *testing.T) {
	c := New()
	res, err := c.Setup("correct horse battery staple")
	require.NoError(t, err)
	require.False(t, c.Locked())

	c2 := New()
	require.True(t, c2.Locked())
	err = c2.Unlock("correct horse battery staple", res.KeyMaterial)
	require.NoError(t, err)
	require.False(t, c2.Locked())
}

func TestUnlockWrongPassword(t *testing.T) {
	c := New()
	res, err := c.Setup("right-password")
	require.NoError(t, err)

	c2 := New()
	err = c2.Unlock("wrong-password", res.KeyMaterial)
	require.ErrorIs(t, err, types.ErrWrongPassword)
	require.True(t, c2.Locked())
}

func TestEncryptDecryptBlobRoundTrip(t *testing.T) {
	c := New()
	_, err := c.Setup("pw")
	require.NoError(t, err)

	blob, err := c.EncryptBlob([]byte("hello world"))
	require.NoError(t, err)

	plaintext, err := c.DecryptBlob(blob, types.EmbeddedNonceMarker)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(plaintext))
}

func TestEncryptBlobNoncesAreUnique(t *testing.T) {
	c := New()
	_, err := c.Setup("pw")
	require.NoError(t, err)

	a, err := c.EncryptBlob([]byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.EncryptBlob([]byte("same plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptBlobTamperedCiphertextFails(t *testing.T) {
	c := New()
	_, err := c.Setup("pw")
	require.NoError(t, err)

	blob, err := c.EncryptBlob([]byte("hello"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.DecryptBlob(tampered, types.EmbeddedNonceMarker)
	require.ErrorIs(t, err, types.ErrInvalidCiphertext)
}

func TestDecryptBlobLocked(t *testing.T) {
	c := New()
	_, err := c.DecryptBlob("anything", "")
	require.ErrorIs(t, err, types.ErrNotUnlocked)
}

func TestEncryptDecryptNoteRoundTrip(t *testing.T) {
	c := New()
	_, err := c.Setup("pw")
	require.NoError(t, err)

	enc, err := c.EncryptNote("My Title", "# Body\n\nSome markdown.")
	require.NoError(t, err)
	require.Equal(t, HashContent("# Body\n\nSome markdown."), enc.ContentHash)

	note := types.Note{
		EncryptedContent: enc.Blob,
		Nonce:            types.EmbeddedNonceMarker,
		EncryptionAlgo:   types.EncryptionAlgoAESGCMEmbedded,
	}
	title, content, err := c.DecryptNote(note)
	require.NoError(t, err)
	require.Equal(t, "My Title", title)
	require.Equal(t, "# Body\n\nSome markdown.", content)
}

func TestDecryptLegacyNote(t *testing.T) {
	c := New()
	_, err := c.Setup("pw")
	require.NoError(t, err)

	titleCT, nonce := legacySeal(t, c, "Legacy Title")
	contentCT, _ := legacySealWithNonce(t, c, "Legacy content", nonce)

	note := types.Note{
		EncryptedTitle:   titleCT,
		EncryptedContent: contentCT,
		Nonce:            nonce,
		EncryptionAlgo:   types.EncryptionAlgoLegacy,
	}
	title, content, err := c.DecryptNote(note)
	require.NoError(t, err)
	require.Equal(t, "Legacy Title", title)
	require.Equal(t, "Legacy content", content)
}

// legacySeal encrypts plaintext with a fresh nonce using the package's
// internal primitives, returning the base64 ciphertext and nonce, to
// build a fixture resembling pre-embedded-nonce wire records.
func legacySeal(t *testing.T, c *Core, plaintext string) (ciphertext, nonce string) {
	t.Helper()
	blob, err := c.EncryptBlob([]byte(plaintext))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	n := raw[:nonceSize]
	ct := raw[nonceSize:]
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(n)
}

// legacySealWithNonce re-encrypts plaintext reusing a caller-chosen nonce,
// mirroring the legacy format where title and content shared one nonce.
func legacySealWithNonce(t *testing.T, c *Core, plaintext, nonceB64 string) (ciphertext, nonce string) {
	t.Helper()
	nonce2, err := base64.StdEncoding.DecodeString(nonceB64)
	require.NoError(t, err)
	gcm, err := newGCM(c.masterKey)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, nonce2, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nonceB64
}
