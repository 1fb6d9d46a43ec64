// Package cos provides common low-level types and utilities shared across
// the relay's packages.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"unsafe"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating IDs, sized like shortid.DEFAULT_ABC.
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const (
	lenLocalID = 8 // length of a cryptographically random LocalAddress ID
	MLCG32     = 2173734271
)

var sid *shortid.Shortid

// InitShortID seeds the process-wide ID generator; called once at startup.
func InitShortID(seed uint64) { sid = shortid.MustNew(4 /*worker*/, idABC, seed) }

// GenID returns a short, globally-unique-enough identifier, used to tag a
// bridge route's session for logging (a route can be torn down and
// re-dialed; the session id disambiguates the two in a route log).
func GenID() string {
	if sid == nil {
		InitShortID(1)
	}
	return sid.MustGenerate()
}

// GenLocalID generates a cryptographically random LocalAddress ID, used when
// no group-membership transport identity is supplied.
func GenLocalID() string { return CryptoRandS(lenLocalID) }

// HashSite derives a stable bucket index for a site name, used by the
// relayer as a short tag for the site in route logs and dumps.
func HashSite(site string, nbuckets uint64) uint64 {
	if nbuckets == 0 {
		return 0
	}
	return xxhash.Checksum64S(UnsafeB(site), MLCG32) % nbuckets
}

// CryptoRandS returns a cryptographically random alphanumeric string of
// length n.
func CryptoRandS(n int) string {
	const abc = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable in practice; panic
		// rather than silently hand out a predictable identifier.
		panic(err)
	}
	for i, c := range b {
		b[i] = abc[int(c)%len(abc)]
	}
	return string(b)
}

// UnsafeB is a zero-copy []byte view of s. Callers must not mutate the
// result or retain it past s's lifetime.
func UnsafeB(s string) []byte { return unsafe.Slice(unsafe.StringData(s), len(s)) }
