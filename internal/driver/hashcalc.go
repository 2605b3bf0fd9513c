package driver

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"strconv"
)

// Digest is a SHA-256 sum.
type Digest [sha256.Size]byte

// keyHasher feeds length-prefixed fields into SHA-256 so that no two field
// sequences collide by concatenation.
type keyHasher struct{ h hash.Hash }

func newKeyHasher() keyHasher { return keyHasher{h: sha256.New()} }

func (k keyHasher) field(s string) keyHasher {
	var n [binary.MaxVarintLen64]byte
	_, _ = k.h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	_, _ = k.h.Write([]byte(s))
	return k
}

func (k keyHasher) sum() Digest {
	var d Digest
	k.h.Sum(d[:0])
	return d
}

// CacheKey identifies the printed module for src under opts. Only options
// that change the output take part; engine settings do not.
func CacheKey(src string, opts Options) Digest {
	return newKeyHasher().
		field(strconv.Itoa(int(cacheSchemaVersion))).
		field(strconv.FormatBool(opts.VerifyMoves)).
		field(strconv.FormatBool(opts.PrintLocations)).
		field(opts.Target).
		field(src).
		sum()
}
