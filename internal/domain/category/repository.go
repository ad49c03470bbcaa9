package category

import "context"

// Repository defines the interface for category data access
type Repository interface {
	// ListExpenseNames returns the names of all expense categories.
	// Enumerated at classification time so the classifier is always
	// constrained to the live category set.
	ListExpenseNames(ctx context.Context) ([]string, error)
}

// MappingRepository defines the interface for the merchant-category
// learning store
type MappingRepository interface {
	// Lookup returns the mapping for (user, normalized merchant), or nil
	Lookup(ctx context.Context, userID int64, merchantName string) (*MerchantMapping, error)

	// Save creates or updates the mapping for (user, normalized merchant)
	Save(ctx context.Context, userID int64, merchantName, categoryName string) (*MerchantMapping, error)
}
