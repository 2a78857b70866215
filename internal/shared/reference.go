package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReferencePrefix identifies a document family in human readable references.
type ReferencePrefix string

const (
	PrefixSale          ReferencePrefix = "VTE"
	PrefixCreditPayment ReferencePrefix = "RGL"
	PrefixFuel          ReferencePrefix = "CBR"
	PrefixStock         ReferencePrefix = "STK"
	PrefixLogistics     ReferencePrefix = "LOG"
	PrefixExpense       ReferencePrefix = "DEP"
	PrefixManualJournal ReferencePrefix = "OD"
	PrefixStockMovement ReferencePrefix = "MVT"
	PrefixTransfer      ReferencePrefix = "TRF"
	PrefixSupplyRequest ReferencePrefix = "DAP"
)

const referenceSuffixChars = 6

// ReferenceGenerator produces PREFIX-YYMMDDhhmmss-XXXXXX references. The timestamp
// keeps references ordered by creation, the random suffix separates documents created
// within the same second.
type ReferenceGenerator struct {
	now     func() time.Time
	entropy func() string
}

// NewReferenceGenerator returns a generator backed by the wall clock and random UUIDs.
func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{
		now:     time.Now,
		entropy: func() string { return uuid.NewString() },
	}
}

// WithClock overrides the clock for testing.
func (g *ReferenceGenerator) WithClock(now func() time.Time) *ReferenceGenerator {
	if now != nil {
		g.now = now
	}
	return g
}

// WithEntropy overrides the suffix source for testing.
func (g *ReferenceGenerator) WithEntropy(entropy func() string) *ReferenceGenerator {
	if entropy != nil {
		g.entropy = entropy
	}
	return g
}

// Next returns a fresh reference for the prefix.
func (g *ReferenceGenerator) Next(prefix ReferencePrefix) string {
	if g == nil {
		g = NewReferenceGenerator()
	}
	suffix := strings.ToUpper(strings.ReplaceAll(g.entropy(), "-", ""))
	if len(suffix) > referenceSuffixChars {
		suffix = suffix[:referenceSuffixChars]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, g.now().UTC().Format("060102150405"), suffix)
}
