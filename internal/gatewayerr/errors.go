// Package gatewayerr defines the error taxonomy shared by every reconciliation
// subsystem: transport/RPC failures from the node, expected funds shortfalls,
// consistency violations that require a human, and config/validation errors.
package gatewayerr

import "github.com/pkg/errors"

// TransportError wraps a network/HTTP failure talking to the node or a
// webhook endpoint. Callers may retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return errors.Wrapf(e.Err, "transport error during %s", e.Op).Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// RPCError represents a JSON-RPC error object returned by the wallet node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return errors.Errorf("node rpc error %d: %s", e.Code, e.Message).Error()
}

// InsufficientFundsError is expected: the withdrawal stays pending.
type InsufficientFundsError struct {
	AssetID int64
	Need    int64
	Have    int64
}

func (e *InsufficientFundsError) Error() string {
	return errors.Errorf("insufficient funds for asset %d: need %d, have %d", e.AssetID, e.Need, e.Have).Error()
}

// InsufficientUTXOError is expected: the withdrawal stays pending until the
// node reports enough unlocked UTXOs.
type InsufficientUTXOError struct {
	AssetID int64
	Need    int64
	Have    int64
}

func (e *InsufficientUTXOError) Error() string {
	return errors.Errorf("insufficient utxo for asset %d: need %d, have %d", e.AssetID, e.Need, e.Have).Error()
}

// ConsistencyViolationError signals that a sender's locked balance disagrees
// with the sum of its own pending withdrawals. Non-retriable; the caller
// moves the offending rows to admin_check.
type ConsistencyViolationError struct {
	Address string
	AssetID int64
	Reason  string
}

func (e *ConsistencyViolationError) Error() string {
	return errors.Errorf("consistency violation for %s asset %d: %s", e.Address, e.AssetID, e.Reason).Error()
}

// ValidationError is a caller/input error, surfaced synchronously.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return errors.Errorf("validation error on %s: %s", e.Field, e.Reason).Error()
}

// ConfigError is fatal at startup.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return errors.Errorf("config error: %s", e.Reason).Error()
}

// ErrTransactionAlreadyProcessed names the case of a transaction whose
// success flag is already set. The projector does not return it: it
// treats re-observation of such a transaction as a silent no-op.
var ErrTransactionAlreadyProcessed = errors.New("transaction already processed")

// ErrWithdrawalLeaseLost names the case where the pending->processing
// compare-and-set did not match any row, meaning another worker already
// claimed it. WithdrawalStore.ClaimForProcessing reports that case as
// false with a nil error rather than returning this value.
var ErrWithdrawalLeaseLost = errors.New("withdrawal lease already claimed")
