package category

import (
	"strings"
	"time"
)

// FallbackName is the designated category used when nothing else fits.
const FallbackName = "Miscellaneous"

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "EXPENSE" or "INCOME"
}

// Mapping provenance values.
const (
	SourceLearned  = "learned"  // from a user's explicit correction
	SourceInferred = "inferred" // from the classifier
)

// MerchantMapping records the category a user's transactions from one
// merchant should resolve to. Created when the user re-categorizes an
// imported transaction; wins over classifier output on repeat merchants.
type MerchantMapping struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"userId"`
	MerchantName string    `json:"merchantName"` // normalized, see NormalizeMerchant
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormalizeMerchant canonicalizes a merchant name for mapping lookups:
// lower-cased, collapsed whitespace.
func NormalizeMerchant(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
