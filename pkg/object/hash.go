package object

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashContent computes the BLAKE2b-256 digest of the envelope
// "kind len\0content" and returns it as a lowercase hex Hash. The envelope
// mirrors Git's object hashing, so two objects are indistinguishable exactly
// when their kind and content match.
func HashContent(kind Type, content []byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for invalid key sizes; nil is valid.
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	fmt.Fprintf(h, "%s %d\x00", kind, len(content))
	h.Write(content)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
