package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/portfolio"
	"github.com/rustyeddy/papertrade/store"
)

// Errors returned by the Engine. Every failure is one of these (checked
// with errors.Is) and no state was changed when one is returned.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownSymbol      = market.ErrSymbolNotFound
	ErrOracleUnavailable  = market.ErrOracleUnavailable
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
	ErrNoSuchPosition     = portfolio.ErrNoSuchPosition
	ErrInsufficientShares = portfolio.ErrInsufficientShares
	ErrStorageUnavailable = store.ErrUnavailable
)

// Kind classifies an engine error for the presentation layer.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindUnknownSymbol
	KindOracleUnavailable
	KindInsufficientFunds
	KindNoSuchPosition
	KindInsufficientShares
	KindStorageUnavailable
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindInvalidInput:       "invalid_input",
	KindUnknownSymbol:      "unknown_symbol",
	KindOracleUnavailable:  "oracle_unavailable",
	KindInsufficientFunds:  "insufficient_funds",
	KindNoSuchPosition:     "no_such_position",
	KindInsufficientShares: "insufficient_shares",
	KindStorageUnavailable: "storage_unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// KindOf maps err to its Kind. Unclassified errors are reported as
// KindStorageUnavailable since the engine wraps every other failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnknownSymbol):
		return KindUnknownSymbol
	case errors.Is(err, ErrOracleUnavailable):
		return KindOracleUnavailable
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrNoSuchPosition):
		return KindNoSuchPosition
	case errors.Is(err, ErrInsufficientShares):
		return KindInsufficientShares
	default:
		return KindStorageUnavailable
	}
}

// classify leaves domain errors alone and folds everything else into
// ErrStorageUnavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	if KindOf(err) != KindStorageUnavailable {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// ParseShares parses a share count typed by a user. Anything that is not a
// positive whole number is ErrInvalidInput.
func ParseShares(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: missing number of shares", ErrInvalidInput)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number of shares", ErrInvalidInput, s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: shares must be positive", ErrInvalidInput)
	}
	return n, nil
}

func validate(symbol string, shares int64) (string, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: missing symbol", ErrInvalidInput)
	}
	if shares <= 0 {
		return "", fmt.Errorf("%w: shares must be positive", ErrInvalidInput)
	}
	return symbol, nil
}
