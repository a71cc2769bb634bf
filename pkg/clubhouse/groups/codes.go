package groups

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultCodeLength is the invite code length used when none is configured.
const DefaultCodeLength = 6

// codeAlphabet is URL-safe without escaping and avoids the nanoid
// punctuation characters so codes are easy to read out loud.
const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// CodeGenerator returns a fresh random invite code.
type CodeGenerator func() (string, error)

// RandomCodes returns a generator producing alphanumeric codes of length n.
func RandomCodes(n int) CodeGenerator {
	if n <= 0 {
		n = DefaultCodeLength
	}
	return func() (string, error) {
		return gonanoid.Generate(codeAlphabet, n)
	}
}
