package presale

import "errors"

var (
	// Registration failures.
	ErrArityMismatch = errors.New("presale: input lengths differ")
	ErrInvalidOffer  = errors.New("presale: invalid offer definition")

	// Lookup failures.
	ErrOfferNotFound = errors.New("presale: offer not found")

	// Purchase guards, in the order the engine checks them.
	ErrPresaleNotStarted     = errors.New("presale: sale window not open yet")
	ErrPresaleEnded          = errors.New("presale: sale window closed")
	ErrInsufficientInventory = errors.New("presale: not enough inventory left")
	ErrInsufficientPayment   = errors.New("presale: attached payment below price")

	// Settlement and withdrawal guards.
	ErrPresaleNotAlive  = errors.New("presale: offer already settled")
	ErrPresaleNotEnded  = errors.New("presale: sale window still open")
	ErrPresaleAlive     = errors.New("presale: offer not settled yet")
	ErrAlreadyWithdrawn = errors.New("presale: inventory already withdrawn")
	ErrNotPresaleOwner  = errors.New("presale: caller does not own offer")

	// Fee policy guards.
	ErrNotOwner         = errors.New("presale: caller is not the fee owner")
	ErrFeeBpsOutOfRange = errors.New("presale: fee bps above 10000")
)
