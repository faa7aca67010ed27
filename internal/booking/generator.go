// Package booking issues human-readable booking identifiers of the form
// PREFIX-YYYYMMDD-XXXX.
package booking

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

// Alphabet leaves out 0/O and 1/I. Its size divides 256, so one random byte
// maps to one symbol without bias.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultPrefix = "TRX"
	SuffixLen     = 4
)

type Generator struct {
	prefix  string
	entropy io.Reader
	now     func() time.Time
}

type Option func(*Generator)

// WithEntropy replaces crypto/rand. Tests pass a fixed reader.
func WithEntropy(r io.Reader) Option { return func(g *Generator) { g.entropy = r } }

func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

func WithPrefix(p string) Option { return func(g *Generator) { g.prefix = p } }

func New(opts ...Option) *Generator {
	g := &Generator{prefix: DefaultPrefix, entropy: rand.Reader, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Generator) Generate() (string, error) {
	var buf [SuffixLen]byte
	if _, err := io.ReadFull(g.entropy, buf[:]); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	suffix := make([]byte, SuffixLen)
	for i, b := range buf {
		suffix[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return g.prefix + "-" + g.now().Format("20060102") + "-" + string(suffix), nil
}
