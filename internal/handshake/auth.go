package handshake

import (
	"crypto/sha1" //nolint:gosec // mysql_native_password is defined in terms of SHA-1
	"encoding/hex"
)

// HashKind selects how a Config's Password field is interpreted.
type HashKind int

const (
	// Plaintext means Password is the literal password.
	Plaintext HashKind = iota
	// SHA1Hex means Password is 40 lowercase hex characters representing
	// the 20-byte SHA-1 digest of the password, i.e. sha1(password) was
	// already computed by the caller.
	SHA1Hex
)

// nativePasswordResponse computes the mysql_native_password auth response:
//
//	SHA1(password) XOR SHA1(scramble || SHA1(SHA1(password)))
//
// When passwordHash is already sha1(password) (HashKind == SHA1Hex), only
// the second SHA1 application runs, with passwordHash standing in for
// SHA1(password) (§4.2). An empty password yields an empty response.
func nativePasswordResponse(password []byte, kind HashKind, scramble []byte) []byte {
	if len(password) == 0 {
		return []byte{}
	}

	var h1 [sha1.Size]byte
	switch kind {
	case SHA1Hex:
		// password is 40 lowercase hex characters representing the 20-byte
		// SHA1(password) digest (§6), not the digest's raw ASCII bytes.
		decoded, err := hex.DecodeString(string(password))
		if err == nil && len(decoded) == sha1.Size {
			copy(h1[:], decoded)
		}
	default:
		h1 = sha1.Sum(password) //nolint:gosec
	}

	h2 := sha1.Sum(h1[:]) //nolint:gosec

	h := sha1.New() //nolint:gosec
	h.Write(scramble)
	h.Write(h2[:])
	h3 := h.Sum(nil)

	out := make([]byte, sha1.Size)
	for i := range out {
		out[i] = h1[i] ^ h3[i]
	}
	return out
}
