package enums

// CancelReason records why a pending order was cancelled.
type CancelReason string

const (
	CancelReasonSessionExpired CancelReason = "payment_session_expired"
	CancelReasonOrderExpired   CancelReason = "order_expired"
	CancelReasonRequested      CancelReason = "requested"
)

// String implements fmt.Stringer.
func (r CancelReason) String() string {
	return string(r)
}
