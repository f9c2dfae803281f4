// Package keystore implements the on-disk, passphrase-sealed key material
// a node needs to participate in the network (C11): an Ed25519 identity
// key (the NodeId namespace) and an X25519 Noise static key, generated
// together from one random seed and encrypted at rest.
//
// Crypto: Argon2id for passphrase KDF, XChaCha20-Poly1305 for encryption.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/shurlinet/radnode/internal/nodeid"
	"github.com/shurlinet/radnode/internal/noise"
)

var (
	ErrSealed            = errors.New("keystore: sealed")
	ErrAlreadyUnsealed   = errors.New("keystore: already unsealed")
	ErrInvalidPassphrase = errors.New("keystore: invalid passphrase")
	ErrInvalidSeed       = errors.New("keystore: invalid seed phrase")
	ErrNotInitialized    = errors.New("keystore: not initialized")
)

// Argon2id parameters tuned for a solo operator's machine, not a server
// fleet: time=3, memory=64MB, threads=4 gives roughly 1-2s derivation.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	seedLen      = 32 // single seed from which both keypairs are derived
)

// sealedData is the on-disk representation of a keystore file.
type sealedData struct {
	Version       int    `json:"version"`
	Salt          []byte `json:"salt"`
	EncryptedSeed []byte `json:"encrypted_seed"`
	Nonce         []byte `json:"nonce"`
	SeedHash      []byte `json:"seed_hash"`
}

// Keystore holds identity key material, sealed or unsealed. The zero value
// is not usable; construct with Create or Load.
type Keystore struct {
	mu     sync.RWMutex
	sealed bool
	seed   []byte // 32 bytes, nil when sealed

	identity ed25519.PrivateKey
	noiseKp  noise.Keypair

	data *sealedData
}

// Create generates a fresh seed, derives both keypairs from it, and
// returns the unsealed keystore plus a recovery seed phrase. The caller
// must call Save to persist it.
func Create(passphrase string) (*Keystore, string, error) {
	seed := make([]byte, seedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, "", fmt.Errorf("keystore: generate seed: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", fmt.Errorf("keystore: generate salt: %w", err)
	}
	encKey := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encSeed, nonce, err := encrypt(encKey, seed)
	if err != nil {
		return nil, "", fmt.Errorf("keystore: encrypt seed: %w", err)
	}

	seedPhrase := encodeSeedPhrase(seed)
	seedHash := sha256.Sum256([]byte(seedPhrase))

	ks, err := fromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	ks.data = &sealedData{
		Version:       1,
		Salt:          salt,
		EncryptedSeed: encSeed,
		Nonce:         nonce,
		SeedHash:      seedHash[:],
	}
	return ks, seedPhrase, nil
}

// Load reads a keystore file from disk in sealed state.
func Load(path string) (*Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	var sd sealedData
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
	}
	return &Keystore{sealed: true, data: &sd}, nil
}

// Save persists the keystore's sealed encoding to path.
func (k *Keystore) Save(path string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.data == nil {
		return ErrNotInitialized
	}
	raw, err := json.MarshalIndent(k.data, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	return os.WriteFile(path, raw, 0600)
}

// Unseal decrypts the seed and derives both keypairs from it.
func (k *Keystore) Unseal(passphrase string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.sealed {
		return ErrAlreadyUnsealed
	}
	if k.data == nil {
		return ErrNotInitialized
	}

	encKey := argon2.IDKey([]byte(passphrase), k.data.Salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	seed, err := decrypt(encKey, k.data.EncryptedSeed, k.data.Nonce)
	if err != nil {
		return ErrInvalidPassphrase
	}

	identity, noiseKp, err := derive(seed)
	if err != nil {
		zeroBytes(seed)
		return err
	}
	k.seed = seed
	k.identity = identity
	k.noiseKp = noiseKp
	k.sealed = false
	return nil
}

// Seal zeroes key material from memory and marks the keystore sealed.
func (k *Keystore) Seal() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seed != nil {
		zeroBytes(k.seed)
		k.seed = nil
	}
	if k.identity != nil {
		zeroBytes(k.identity)
		k.identity = nil
	}
	k.noiseKp = noise.Keypair{}
	k.sealed = true
}

// IsSealed reports whether the keystore currently holds no key material.
func (k *Keystore) IsSealed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sealed
}

// NodeId implements nodeid.Signer.
func (k *Keystore) NodeId() nodeid.NodeId {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, err := nodeid.Parse(k.identity.Public().(ed25519.PublicKey))
	if err != nil {
		panic("keystore: malformed identity key: " + err.Error())
	}
	return id
}

// Sign implements nodeid.Signer. Sign panics if the keystore is sealed: a
// signer failure during normal operation is a bug, not a recoverable
// error -- only the initial decryption failure at startup is handled as
// an ordinary error (Unseal's return value).
func (k *Keystore) Sign(msg []byte) nodeid.Signature {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.sealed {
		panic("keystore: sign called while sealed")
	}
	var sig nodeid.Signature
	copy(sig[:], ed25519.Sign(k.identity, msg))
	return sig
}

// NoiseKeypair returns the X25519 static keypair used for Noise sessions.
func (k *Keystore) NoiseKeypair() noise.Keypair {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.noiseKp
}

// RecoverFromSeed reconstructs a keystore from a recovery seed phrase,
// re-sealing it under a new passphrase.
func RecoverFromSeed(seedPhrase, newPassphrase string) (*Keystore, error) {
	seed, err := decodeSeedPhrase(seedPhrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: generate salt: %w", err)
	}
	encKey := argon2.IDKey([]byte(newPassphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encSeed, nonce, err := encrypt(encKey, seed)
	if err != nil {
		return nil, fmt.Errorf("keystore: encrypt seed: %w", err)
	}

	seedHash := sha256.Sum256([]byte(encodeSeedPhrase(seed)))

	ks, err := fromSeed(seed)
	if err != nil {
		return nil, err
	}
	ks.data = &sealedData{
		Version:       1,
		Salt:          salt,
		EncryptedSeed: encSeed,
		Nonce:         nonce,
		SeedHash:      seedHash[:],
	}
	return ks, nil
}

func fromSeed(seed []byte) (*Keystore, error) {
	identity, noiseKp, err := derive(seed)
	if err != nil {
		return nil, err
	}
	return &Keystore{sealed: false, seed: seed, identity: identity, noiseKp: noiseKp}, nil
}

// derive expands one random seed into an Ed25519 identity key and an
// X25519 Noise key deterministically, so a single seed phrase recovers
// both. The two namespaces stay cryptographically distinct (different
// curves, different derivation inputs) even though they share one root,
// unlike the RemoteNodeID byte-reuse shortcut elsewhere in this codebase
// (see noise.Session.RemoteNodeID's doc comment).
func derive(seed []byte) (ed25519.PrivateKey, noise.Keypair, error) {
	if len(seed) != seedLen {
		return nil, noise.Keypair{}, fmt.Errorf("keystore: seed must be %d bytes, got %d", seedLen, len(seed))
	}

	edSeed := sha256.Sum256(append([]byte("radnode-identity-ed25519"), seed...))
	identity := ed25519.NewKeyFromSeed(edSeed[:])

	noiseSeed := sha256.Sum256(append([]byte("radnode-noise-x25519"), seed...))
	noiseKp, err := noise.GenerateKeypairFromSeed(noiseSeed[:])
	if err != nil {
		return nil, noise.Keypair{}, fmt.Errorf("keystore: derive noise keypair: %w", err)
	}

	return identity, noiseKp, nil
}

func encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

func zeroBytes(b []byte) {
	subtle.XORBytes(b, b, b)
}

// Seed phrases are 32 hex-pair words, recovery-friendly and unambiguous
// without needing a bundled wordlist.
func encodeSeedPhrase(seed []byte) string {
	words := make([]string, len(seed))
	for i, b := range seed {
		words[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(words, " ")
}

func decodeSeedPhrase(phrase string) ([]byte, error) {
	words := strings.Fields(phrase)
	if len(words) != seedLen {
		return nil, fmt.Errorf("expected %d words, got %d", seedLen, len(words))
	}
	seed := make([]byte, 0, len(words))
	for _, w := range words {
		b, err := hex.DecodeString(w)
		if err != nil {
			return nil, fmt.Errorf("invalid seed word %q: %w", w, err)
		}
		seed = append(seed, b...)
	}
	return seed, nil
}
