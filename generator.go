package goNoPassword

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"math/big"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// codeEntropyBytes is the amount of fresh randomness mixed into every code.
const codeEntropyBytes = 16

// CodeGenerator produces candidate login codes. Implementations must return
// exactly length characters and must not touch storage.
type CodeGenerator interface {
	Generate(length int, numeric bool) string
}

type hashSpec struct {
	name string
	size int
	new  func() hash.Hash
}

func (s hashSpec) maxLength(numeric bool) int {
	if !numeric {
		return s.size * 2
	}
	// Digits of 2^bits, minus one: every digest value fits after zero padding.
	return len(new(big.Int).Lsh(big.NewInt(1), uint(s.size*8)).String()) - 1
}

func newBlake2b256() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

func newBlake2b512() hash.Hash {
	h, _ := blake2b.New512(nil)
	return h
}

var hashSpecs = map[string]hashSpec{
	"md5":         {name: "md5", size: md5.Size, new: md5.New},
	"sha1":        {name: "sha1", size: sha1.Size, new: sha1.New},
	"sha224":      {name: "sha224", size: sha256.Size224, new: sha256.New224},
	"sha256":      {name: "sha256", size: sha256.Size, new: sha256.New},
	"sha384":      {name: "sha384", size: sha512.Size384, new: sha512.New384},
	"sha512":      {name: "sha512", size: sha512.Size, new: sha512.New},
	"sha3-256":    {name: "sha3-256", size: 32, new: sha3.New256},
	"sha3-512":    {name: "sha3-512", size: 64, new: sha3.New512},
	"blake2b-256": {name: "blake2b-256", size: blake2b.Size256, new: newBlake2b256},
	"blake2b-512": {name: "blake2b-512", size: blake2b.Size, new: newBlake2b512},
}

func lookupHash(name string) (hashSpec, bool) {
	spec, ok := hashSpecs[strings.ToLower(name)]
	return spec, ok
}

// SupportedHashAlgorithms lists the names accepted by CodeConfig.HashAlgorithm.
func SupportedHashAlgorithms() []string {
	out := make([]string, 0, len(hashSpecs))
	for name := range hashSpecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HashGenerator hashes a server secret together with fresh random bytes and
// encodes the digest as hex or decimal digits.
type HashGenerator struct {
	secret  []byte
	spec    hashSpec
	entropy io.Reader
}

// NewHashGenerator returns a generator for the named algorithm. It returns
// false when the algorithm is unknown.
func NewHashGenerator(secret []byte, algorithm string) (*HashGenerator, bool) {
	spec, ok := lookupHash(algorithm)
	if !ok {
		return nil, false
	}
	return &HashGenerator{
		secret:  cloneBytes(secret),
		spec:    spec,
		entropy: rand.Reader,
	}, true
}

// Generate returns a code of exactly length characters. Lengths above the
// digest capacity are clamped by Config.Validate, so they never reach here
// through the Engine.
func (g *HashGenerator) Generate(length int, numeric bool) string {
	var salt [codeEntropyBytes]byte
	if _, err := io.ReadFull(g.entropy, salt[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic("goNoPassword: entropy source failed: " + err.Error())
	}

	h := g.spec.new()
	h.Write(g.secret)
	h.Write(salt[:])
	sum := h.Sum(nil)

	if numeric {
		return lastDigits(new(big.Int).SetBytes(sum).String(), length)
	}
	return truncate(hex.EncodeToString(sum), length)
}

func truncate(s string, length int) string {
	if len(s) >= length {
		return s[:length]
	}
	return s + strings.Repeat("0", length-len(s))
}

func lastDigits(digits string, length int) string {
	if len(digits) >= length {
		return digits[len(digits)-length:]
	}
	return strings.Repeat("0", length-len(digits)) + digits
}

// wellFormedCode reports whether code could have been produced with the
// given settings. It lets redemption reject garbage without a store call.
func wellFormedCode(code string, length int, numeric bool) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= '0' && c <= '9':
		case !numeric && c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
