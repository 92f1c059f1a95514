package packet

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	DigestMD5Hex    = "md5-hex"
	DigestMD5       = "md5"
	DigestSHA256128 = "sha256-128"
)

// Digest is a fixed-width integrity function that both ends must agree on.
type Digest struct {
	Name  string
	Width int
	sum   func([]byte) []byte
}

// Sum returns exactly Width bytes.
func (d Digest) Sum(b []byte) []byte {
	return d.sum(b)
}

func (d Digest) valid() bool {
	return d.sum != nil && d.Width > 0
}

var digests = map[string]Digest{
	DigestMD5Hex: {
		Name:  DigestMD5Hex,
		Width: hex.EncodedLen(md5.Size),
		sum: func(b []byte) []byte {
			s := md5.Sum(b)
			out := make([]byte, hex.EncodedLen(md5.Size))
			hex.Encode(out, s[:])
			return out
		},
	},
	DigestMD5: {
		Name:  DigestMD5,
		Width: md5.Size,
		sum: func(b []byte) []byte {
			s := md5.Sum(b)
			return s[:]
		},
	},
	DigestSHA256128: {
		Name:  DigestSHA256128,
		Width: 16,
		sum: func(b []byte) []byte {
			s := sha256.Sum256(b)
			return s[:16]
		},
	},
}

// LookupDigest resolves a digest by name. Names are case-insensitive.
func LookupDigest(name string) (Digest, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DigestMD5Hex
	}
	d, ok := digests[key]
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDigest, name, strings.Join(DigestNames(), ", "))
	}
	return d, nil
}

func DigestNames() []string {
	out := make([]string, 0, len(digests))
	for name := range digests {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
