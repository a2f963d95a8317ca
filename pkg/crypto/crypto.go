// Package crypto is the CryptoCore: workspace master key derivation and
// self-wrapping, and authenticated encryption of note title+body blobs.
//
// The master key never leaves the process in plaintext. Every ciphertext
// this package produces is AES-256-GCM with a fresh 96-bit random nonce;
// nonces are drawn from crypto/rand, never a counter, so reuse across
// calls is not possible short of RNG failure.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/inkleaf/notesync/pkg/types"
)

const (
	// PBKDF2Iterations matches spec: 100,000 rounds of PBKDF2-HMAC-SHA256.
	PBKDF2Iterations = 100000
	saltSize         = 16 // 128-bit random salt
	nonceSize        = 12 // 96-bit random nonce
	tagSize          = 16 // GCM authentication tag
)

// Core holds the in-memory master key once unlocked. The zero value is
// locked; call Setup or Unlock before Encrypt/Decrypt.
type Core struct {
	masterKey []byte // types.MasterKeySize bytes, nil while locked
}

// New returns a locked Core.
func New() *Core {
	return &Core{}
}

// Locked reports whether the master key is not currently in memory.
func (c *Core) Locked() bool {
	return c.masterKey == nil
}

// Clear wipes the master key from memory, e.g. on logout.
func (c *Core) Clear() {
	for i := range c.masterKey {
		c.masterKey[i] = 0
	}
	c.masterKey = nil
}

// SetupResult is everything that must be persisted, both locally and on
// the server, after a fresh workspace key setup.
type SetupResult struct {
	KeyMaterial types.KeyMaterial
}

// Setup derives a key from password via PBKDF2, generates a fresh random
// 256-bit master key, and self-wraps it under the derived key with
// AES-256-GCM. The master key is left unlocked in memory on success.
func (c *Core) Setup(password string) (SetupResult, error) {
	if password == "" {
		return SetupResult{}, fmt.Errorf("crypto: password required")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return SetupResult{}, fmt.Errorf("crypto: generate salt: %w", err)
	}

	master := make([]byte, types.MasterKeySize)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return SetupResult{}, fmt.Errorf("crypto: generate master key: %w", err)
	}

	derived := deriveKey(password, salt)
	wrapped, err := sealEmbedded(derived, master)
	if err != nil {
		return SetupResult{}, fmt.Errorf("crypto: wrap master key: %w", err)
	}

	c.masterKey = master

	return SetupResult{
		KeyMaterial: types.KeyMaterial{
			EncryptedKey:   wrapped,
			KeySalt:        base64.StdEncoding.EncodeToString(salt),
			KDFParams:      types.KDFParams{Iterations: PBKDF2Iterations, KeyLength: types.MasterKeySize, Hash: "sha256"},
			EncryptionAlgo: types.EncryptionAlgoAESGCMEmbedded,
		},
	}, nil
}

// Unlock re-derives the wrapping key from password and the stored salt,
// then decrypts the wrapped master key. It is also used as
// restore_from_password: there is no separate code path, since both
// start from the same persisted KeyMaterial.
func (c *Core) Unlock(password string, km types.KeyMaterial) error {
	salt, err := base64.StdEncoding.DecodeString(km.KeySalt)
	if err != nil {
		return fmt.Errorf("%w: bad salt encoding: %v", types.ErrKeyCorrupt, err)
	}

	derived := deriveKey(password, salt)
	master, err := openEmbedded(derived, km.EncryptedKey)
	if err != nil {
		return fmt.Errorf("%w", types.ErrWrongPassword)
	}
	if len(master) != types.MasterKeySize {
		return fmt.Errorf("%w: unexpected master key length %d", types.ErrKeyCorrupt, len(master))
	}

	c.masterKey = master
	return nil
}

// EncryptBlob encrypts plaintext under the master key with a fresh
// random nonce, returning base64(nonce ∥ ciphertext ∥ tag).
func (c *Core) EncryptBlob(plaintext []byte) (string, error) {
	if c.Locked() {
		return "", types.ErrNotUnlocked
	}
	return sealEmbedded(c.masterKey, plaintext)
}

// DecryptBlob decrypts a base64(nonce ∥ ciphertext ∥ tag) blob. If
// legacyNonce is non-empty, embedded-format decryption is tried first and,
// on failure, legacyNonce is used against the same ciphertext bytes --
// the backward-compatibility path for pre-embedded-nonce records.
func (c *Core) DecryptBlob(ciphertext string, legacyNonce string) ([]byte, error) {
	if c.Locked() {
		return nil, types.ErrNotUnlocked
	}
	plaintext, err := openEmbedded(c.masterKey, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	if legacyNonce == "" || legacyNonce == types.EmbeddedNonceMarker {
		return nil, fmt.Errorf("%w", types.ErrInvalidCiphertext)
	}
	return openWithNonce(c.masterKey, legacyNonce, ciphertext)
}

// noteContent is the plaintext JSON both title and body are encoded into
// before encryption, so they share a single nonce without ever reusing a
// key/nonce pair across the two fields.
type noteContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// EncryptedNote is the ciphertext plus the diffable content hash.
type EncryptedNote struct {
	Blob        string
	ContentHash string
}

// EncryptNote encrypts title+content as one JSON plaintext and reports
// the SHA-256 hash of the body alone, stable across re-encryptions of
// the same content, used by the reconciler to diff without ciphertexts.
func (c *Core) EncryptNote(title, content string) (EncryptedNote, error) {
	if c.Locked() {
		return EncryptedNote{}, types.ErrNotUnlocked
	}
	plaintext, err := json.Marshal(noteContent{Title: title, Content: content})
	if err != nil {
		return EncryptedNote{}, fmt.Errorf("crypto: marshal note: %w", err)
	}
	blob, err := sealEmbedded(c.masterKey, plaintext)
	if err != nil {
		return EncryptedNote{}, fmt.Errorf("crypto: encrypt note: %w", err)
	}
	return EncryptedNote{Blob: blob, ContentHash: HashContent(content)}, nil
}

// DecryptNote is the inverse of EncryptNote, also handling the legacy
// split-ciphertext format (separate EncryptedTitle/EncryptedContent and
// a real Nonce) when EncryptionAlgo is EncryptionAlgoLegacy.
func (c *Core) DecryptNote(note types.Note) (title, content string, err error) {
	if c.Locked() {
		return "", "", types.ErrNotUnlocked
	}

	if note.EncryptionAlgo == types.EncryptionAlgoLegacy {
		return c.decryptLegacyNote(note)
	}

	plaintext, err := c.DecryptBlob(note.EncryptedContent, note.Nonce)
	if err != nil {
		return "", "", err
	}
	var nc noteContent
	if err := json.Unmarshal(plaintext, &nc); err != nil {
		return "", "", fmt.Errorf("%w: note payload not valid json: %v", types.ErrInvalidCiphertext, err)
	}
	return nc.Title, nc.Content, nil
}

// decryptLegacyNote handles pre-embedded-nonce records: a real base64
// nonce stored separately and title/content encrypted independently.
func (c *Core) decryptLegacyNote(note types.Note) (title, content string, err error) {
	titlePlain, err := openWithNonce(c.masterKey, note.Nonce, note.EncryptedTitle)
	if err != nil {
		return "", "", fmt.Errorf("%w: legacy title: %v", types.ErrInvalidCiphertext, err)
	}
	contentPlain, err := openWithNonce(c.masterKey, note.Nonce, note.EncryptedContent)
	if err != nil {
		return "", "", fmt.Errorf("%w: legacy content: %v", types.ErrInvalidCiphertext, err)
	}
	return string(titlePlain), string(contentPlain), nil
}

// HashContent is the SHA-256 of plaintext body, base64-encoded, used as
// the content_hash in manifests and local mappings.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, types.MasterKeySize, sha256.New)
}

// sealEmbedded encrypts plaintext under key with a fresh random nonce and
// returns base64(nonce ∥ ciphertext ∥ tag). AAD is always empty, per the
// wire format.
func sealEmbedded(key, plaintext []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// openEmbedded decrypts base64(nonce ∥ ciphertext ∥ tag) under key.
func openEmbedded(key []byte, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad base64: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: authentication failed: %w", err)
	}
	return plaintext, nil
}

// openWithNonce decrypts base64 ciphertext (no embedded nonce) using a
// separately supplied base64 nonce -- the legacy wire format.
func openWithNonce(key []byte, nonceB64, ciphertextB64 string) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad legacy nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: bad legacy ciphertext: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: authentication failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create gcm: %w", err)
	}
	return gcm, nil
}
