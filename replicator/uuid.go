package replicator

import (
	"crypto/rand"
)

const shortUUIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// shortUUID generates a 15-character identifier over a 62-character
// alphabet, seeded from crypto/rand. Compact enough for display in
// constrained UI while keeping collision probability negligible for a
// single client's lifetime.
func shortUUID() string {
	const length = 15
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = shortUUIDAlphabet[int(b)%len(shortUUIDAlphabet)]
	}
	return string(out)
}
