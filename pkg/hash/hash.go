// Package hash computes and encodes the content addresses used
// throughout the runtime: a blake2b-256 digest of a canonical byte
// serialization, base58-encoded the same way agent public keys are.
package hash

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Address is the base58-encoded digest of some canonical serialization.
// Two objects that serialize identically always produce the same
// Address; Address is safe to use as a map key and for equality checks.
type Address string

// Size is the digest length in bytes before base58 encoding.
const Size = 32

// String satisfies fmt.Stringer.
func (a Address) String() string { return string(a) }

// Empty reports whether the address is the zero value.
func (a Address) Empty() bool { return a == "" }

// Of returns the Address of the given canonical bytes.
func Of(data []byte) Address {
	digest := blake2b.Sum256(data)
	return Address(base58.Encode(digest[:]))
}

// Decode recovers the raw bytes backing an Address. It returns an error
// if the address is not valid base58; it does not check the decoded
// length against Size, so callers that need a fixed length check it.
func Decode(a Address) ([]byte, error) {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return nil, err
	}
	return raw, nil
}
