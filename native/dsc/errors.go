package dsc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNilState                = errors.New("dsc engine: state not configured")
	ErrNeedsMoreThanZero       = errors.New("dsc engine: amount must be greater than zero")
	ErrAssetNotAllowed         = errors.New("dsc engine: collateral asset not allowed")
	ErrRegistryLengthMismatch  = errors.New("dsc engine: collateral assets and price feeds length mismatch")
	ErrZeroAddress             = errors.New("dsc engine: zero address")
	ErrDuplicateAsset          = errors.New("dsc engine: duplicate collateral asset")
	ErrMissingToken            = errors.New("dsc engine: collateral token not configured")
	ErrBreaksHealthFactor      = errors.New("dsc engine: health factor below minimum")
	ErrDepositFailed           = errors.New("dsc engine: collateral deposit transfer failed")
	ErrRedeemFailed            = errors.New("dsc engine: collateral redemption transfer failed")
	ErrTransferFailed          = errors.New("dsc engine: stablecoin transfer failed")
	ErrMintFailed              = errors.New("dsc engine: stablecoin mint failed")
	ErrBurnFailed              = errors.New("dsc engine: stablecoin burn failed")
	ErrHealthFactorOK          = errors.New("dsc engine: health factor ok, position not liquidatable")
	ErrHealthFactorNotImproved = errors.New("dsc engine: liquidation did not improve health factor")
	ErrUnderflow               = errors.New("dsc engine: arithmetic underflow")
	ErrInvalidPrice            = errors.New("dsc engine: price feed returned zero price")
)

// SolvencyError reports an account whose health factor fell below the
// minimum. It matches ErrBreaksHealthFactor under errors.Is.
type SolvencyError struct {
	Account      common.Address
	HealthFactor *big.Int
}

func (e *SolvencyError) Error() string {
	return fmt.Sprintf("%s: account %s health factor %s", ErrBreaksHealthFactor, e.Account.Hex(), e.HealthFactor)
}

func (e *SolvencyError) Is(target error) bool {
	return target == ErrBreaksHealthFactor
}

// stageError converts a collaborator result into the stage-specific error.
func stageError(stage error, ok bool, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %w", stage, cause)
	}
	if !ok {
		return stage
	}
	return nil
}

func underflow(what string, have, want *big.Int) error {
	return fmt.Errorf("%w: %s balance %s below %s", ErrUnderflow, what, have, want)
}

// errorClass buckets errors for metrics labels.
func errorClass(err error) string {
	var solvency *SolvencyError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &solvency), errors.Is(err, ErrBreaksHealthFactor):
		return "solvency"
	case errors.Is(err, ErrNeedsMoreThanZero), errors.Is(err, ErrAssetNotAllowed):
		return "validation"
	case errors.Is(err, ErrDepositFailed), errors.Is(err, ErrRedeemFailed),
		errors.Is(err, ErrTransferFailed), errors.Is(err, ErrMintFailed), errors.Is(err, ErrBurnFailed):
		return "transfer"
	case errors.Is(err, ErrHealthFactorOK), errors.Is(err, ErrHealthFactorNotImproved):
		return "liquidation"
	case errors.Is(err, ErrUnderflow):
		return "underflow"
	default:
		return "error"
	}
}
