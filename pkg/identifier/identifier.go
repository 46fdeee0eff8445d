// Package identifier produces the opaque references attached to projects and
// ledger entries. None of them are globally unique; the random space makes
// collisions negligible for this use.
package identifier

import (
	"fmt"
	"strings"
	"time"

	"carbon-scribe/restoration-portal/pkg/random"
)

const (
	// ContentRefPrefix mimics a CIDv0 multihash prefix.
	ContentRefPrefix = "Qm"
	// ContentRefLength is the full length of a content reference.
	ContentRefLength = 44
	// TokenPrefix prefixes every proof-of-restoration token id.
	TokenPrefix = "BCX"
	// TxRefHexLength is the number of hex digits after the 0x prefix.
	TxRefHexLength = 64
	// AddressHexLength is the number of hex digits in a wallet address.
	AddressHexLength = 40

	contentRefVariants = "XYZABC"
	contentRefBody     = 40
	alphanumeric       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	hexDigits          = "0123456789abcdef"
)

// Generator builds identifiers from an injected random source.
type Generator struct {
	rnd random.Source
}

// NewGenerator creates a generator. A nil source uses random.Default().
func NewGenerator(rnd random.Source) *Generator {
	if rnd == nil {
		rnd = random.Default()
	}
	return &Generator{rnd: rnd}
}

// ContentRef returns "Qm", a variant letter, a digit and 40 alphanumerics.
func (g *Generator) ContentRef() string {
	var b strings.Builder
	b.Grow(ContentRefLength)
	b.WriteString(ContentRefPrefix)
	b.WriteByte(contentRefVariants[g.rnd.IntN(len(contentRefVariants))])
	b.WriteByte(byte('0' + g.rnd.IntN(10)))
	for i := 0; i < contentRefBody; i++ {
		b.WriteByte(alphanumeric[g.rnd.IntN(len(alphanumeric))])
	}
	return b.String()
}

// TokenID returns BCX-YYYY-NNN using the year of now.
func (g *Generator) TokenID(now time.Time) string {
	return fmt.Sprintf("%s-%d-%03d", TokenPrefix, now.Year(), g.rnd.IntN(1000))
}

// TxRef returns 0x followed by 64 lowercase hex digits.
func (g *Generator) TxRef() string {
	return "0x" + g.hex(TxRefHexLength)
}

// Address returns 0x followed by 40 lowercase hex digits.
func (g *Generator) Address() string {
	return "0x" + g.hex(AddressHexLength)
}

func (g *Generator) hex(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = hexDigits[g.rnd.IntN(len(hexDigits))]
	}
	return string(buf)
}
