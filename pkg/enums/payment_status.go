package enums

import "fmt"

// PaymentStatus tracks a single payment attempt against an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusSuccess,
	PaymentStatusFailed,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsSettled reports whether the attempt has reached a final state.
func (p PaymentStatus) IsSettled() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed
}

// CanTransitionTo allows only PENDING to settle. A settled attempt never
// changes again; a retry is a new attempt.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return p == PaymentStatusPending && next.IsSettled()
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
