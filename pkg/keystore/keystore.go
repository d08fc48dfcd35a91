// Package keystore manages root seeds and derived signing keypairs for
// the local agent. Keys never leave the process: callers ask the
// keystore to sign on their behalf rather than extracting private key
// material.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/holoerr"
)

// SeedSize is the length in bytes of a root or derived seed.
const SeedSize = 32

// secret is either a root/derived seed or a realized signing keypair.
type secret struct {
	seed    []byte
	signing *signingKeyPair
}

type signingKeyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Keystore holds named secrets behind a single mutex, mirroring the
// teacher's TokenManager: a map guarded by a RWMutex, no persistence of
// its own.
type Keystore struct {
	mu   sync.RWMutex
	keys map[string]*secret
}

// New returns an empty keystore.
func New() *Keystore {
	return &Keystore{keys: make(map[string]*secret)}
}

// List returns the identifiers currently stored.
func (k *Keystore) List() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	return ids
}

// AddRandomSeed generates a new random root seed under id.
func (k *Keystore) AddRandomSeed(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[id]; exists {
		return fmt.Errorf("%w: identifier %q already exists", holoerr.ErrGeneric, id)
	}
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("%w: %v", holoerr.ErrGeneric, err)
	}
	k.keys[id] = &secret{seed: seed}
	return nil
}

// AddSeedFromSeed derives a new seed from an existing root/derived seed
// using HKDF, keyed by a context string and an index, and stores it
// under dstID.
func (k *Keystore) AddSeedFromSeed(srcID, dstID, context string, index uint64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[dstID]; exists {
		return fmt.Errorf("%w: identifier %q already exists", holoerr.ErrGeneric, dstID)
	}
	src, exists := k.keys[srcID]
	if !exists {
		return fmt.Errorf("%w: unknown source identifier %q", holoerr.ErrGeneric, srcID)
	}
	if src.seed == nil {
		return fmt.Errorf("%w: source secret %q is not a seed", holoerr.ErrGeneric, srcID)
	}
	derived, err := deriveSeed(src.seed, context, index)
	if err != nil {
		return err
	}
	k.keys[dstID] = &secret{seed: derived}
	return nil
}

// AddKeyFromSeed derives a signing keypair from a stored seed and
// returns the new key's public address.
func (k *Keystore) AddKeyFromSeed(srcID, dstID, context string, index uint64) (hash.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[dstID]; exists {
		return "", fmt.Errorf("%w: identifier %q already exists", holoerr.ErrGeneric, dstID)
	}
	src, exists := k.keys[srcID]
	if !exists {
		return "", fmt.Errorf("%w: unknown source identifier %q", holoerr.ErrGeneric, srcID)
	}
	if src.seed == nil {
		return "", fmt.Errorf("%w: source secret %q is not a seed", holoerr.ErrGeneric, srcID)
	}
	derivedSeed, err := deriveSeed(src.seed, context, index)
	if err != nil {
		return "", err
	}
	priv := ed25519.NewKeyFromSeed(derivedSeed)
	pub := priv.Public().(ed25519.PublicKey)
	k.keys[dstID] = &secret{signing: &signingKeyPair{public: pub, private: priv}}
	return AddressFromPublicKey(pub), nil
}

// Sign signs data with the keypair stored under id.
func (k *Keystore) Sign(id string, data []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	src, exists := k.keys[id]
	if !exists {
		return nil, fmt.Errorf("%w: unknown source identifier %q", holoerr.ErrGeneric, id)
	}
	if src.signing == nil {
		return nil, fmt.Errorf("%w: source secret %q is not a key", holoerr.ErrGeneric, id)
	}
	return ed25519.Sign(src.signing.private, data), nil
}

// PublicKey returns the public key address stored under id.
func (k *Keystore) PublicKey(id string) (hash.Address, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	src, exists := k.keys[id]
	if !exists {
		return "", fmt.Errorf("%w: unknown source identifier %q", holoerr.ErrGeneric, id)
	}
	if src.signing == nil {
		return "", fmt.Errorf("%w: source secret %q is not a key", holoerr.ErrGeneric, id)
	}
	return AddressFromPublicKey(src.signing.public), nil
}

// Verify checks a signature over data against the given public address.
func Verify(agent hash.Address, data, signature []byte) (bool, error) {
	raw, err := hash.Decode(agent)
	if err != nil {
		return false, fmt.Errorf("%w: %v", holoerr.ErrSerialization, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: agent address is not an ed25519 public key", holoerr.ErrGeneric)
	}
	return ed25519.Verify(ed25519.PublicKey(raw), data, signature), nil
}

// SignOneTime creates an ephemeral keypair, signs data, and discards the
// private key, returning only the public address and signature.
func SignOneTime(data []byte) (hash.Address, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", holoerr.ErrGeneric, err)
	}
	return AddressFromPublicKey(pub), ed25519.Sign(priv, data), nil
}

// AddressFromPublicKey renders an ed25519 public key as a hash.Address
// the same way every other address in the system is encoded: a public
// key is used directly as its own address, never re-hashed, so that the
// capability-token "self" shortcut (token == agent's own public key) is
// a plain equality check.
func AddressFromPublicKey(pub ed25519.PublicKey) hash.Address {
	return hash.Address(base58.Encode(pub))
}

func deriveSeed(root []byte, context string, index uint64) ([]byte, error) {
	info := make([]byte, len(context)+8)
	copy(info, context)
	for i := 0; i < 8; i++ {
		info[len(context)+i] = byte(index >> (8 * i))
	}
	reader := hkdf.New(sha256.New, root, nil, info)
	derived := make([]byte, SeedSize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("%w: %v", holoerr.ErrGeneric, err)
	}
	return derived, nil
}
