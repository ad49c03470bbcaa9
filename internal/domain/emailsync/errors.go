package emailsync

import "errors"

var (
	// ErrPaymentEmail marks a card-payment confirmation. It is an
	// expected filtering outcome, not a failure: the email is recorded
	// as SKIPPED and no transaction is created.
	ErrPaymentEmail = errors.New("payment confirmation email")

	// ErrClassificationFailed means the classifier returned an empty or
	// unparseable response for the email.
	ErrClassificationFailed = errors.New("classification failed")

	// ErrInvalidAmount means the classifier parse carried no positive
	// amount.
	ErrInvalidAmount = errors.New("parsed amount missing or not positive")

	// ErrSyncInProgress means another run holds the connection's sync
	// slot.
	ErrSyncInProgress = errors.New("sync already in progress for connection")
)
