package model

import "fmt"

// FillState is one state of the order fill state machine.
type FillState string

const (
	FillPending         FillState = "PENDING"
	FillResting         FillState = "RESTING"
	FillPartiallyFilled FillState = "PARTIALLY_FILLED"
	FillFilled          FillState = "FILLED"
	FillError           FillState = "ERROR"
)

// fillTransitions defines the only legal state changes:
// PENDING -> RESTING | FILLED | ERROR on the submit response,
// RESTING -> FILLED | PARTIALLY_FILLED | ERROR on poll.
// FILLED, PARTIALLY_FILLED and ERROR are terminal; a partial fill is
// terminal for this engine, no re-fill is pursued.
var fillTransitions = map[FillState][]FillState{
	FillPending: {FillResting, FillFilled, FillError},
	FillResting: {FillFilled, FillPartiallyFilled, FillError},
}

// OrderFillStatus tracks one submitted order through its fill lifecycle.
type OrderFillStatus struct {
	State         FillState
	OrderID       string
	RequestedSize float64
	FilledSize    float64
	AvgFillPrice  float64
	ErrorMessage  string
}

// NewOrderFillStatus creates a status in the PENDING state.
func NewOrderFillStatus(orderID string, requestedSize float64) *OrderFillStatus {
	return &OrderFillStatus{State: FillPending, OrderID: orderID, RequestedSize: requestedSize}
}

// Terminal reports whether no further state change is possible.
func (o *OrderFillStatus) Terminal() bool {
	switch o.State {
	case FillFilled, FillPartiallyFilled, FillError:
		return true
	}
	return false
}

// Advance moves the status to next, rejecting transitions the state
// machine does not define.
func (o *OrderFillStatus) Advance(next FillState) error {
	for _, allowed := range fillTransitions[o.State] {
		if next == allowed {
			o.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal fill transition %s -> %s (order %s)", o.State, next, o.OrderID)
}

// Fail moves the status to ERROR with a message. Used for both venue-side
// rejections and the bounded poll timeout, which is treated as a non-fill.
func (o *OrderFillStatus) Fail(msg string) error {
	if err := o.Advance(FillError); err != nil {
		return err
	}
	o.ErrorMessage = msg
	return nil
}
