package tp

import "errors"

// ErrBusy is returned by Send when a session already occupies the
// destination's uniqueness slot (I1).
var ErrBusy = ErrDuplicateSession

// ErrTooLarge is returned by Send when size exceeds MaxMessageSize.
var ErrTooLarge = errors.New("tp: message exceeds 1785 bytes")

// ErrTooSmall is returned by Send when size is below MinMessageSize; the
// caller must use the single-frame path instead of Transport Protocol.
var ErrTooSmall = errors.New("tp: message below 9 bytes, use single-frame path")

// ErrCANBusy is returned by the CanTx collaborator when the underlying
// controller's transmit queue is full. The engine retries the same send on
// a short deadline for up to RetryWindowRX (receiver roles) or
// RetryWindowTX (sender roles) before escalating to the timeout path —
// Abort(reason=3) for CM roles, a silent local-error drop for BAM roles,
// which has no abort channel (§4.5, §7).
var ErrCANBusy = errors.New("tp: CAN transmit queue busy")
