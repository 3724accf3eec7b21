package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle            CheckoutStatus = "IDLE"
	CheckoutStatusRegionSelection CheckoutStatus = "REGION_SELECTION"
	CheckoutStatusSubmitting      CheckoutStatus = "SUBMITTING"
	CheckoutStatusSucceeded       CheckoutStatus = "SUCCEEDED"
	CheckoutStatusFailed          CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusSucceeded || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusIdle:            {CheckoutStatusRegionSelection},
	CheckoutStatusRegionSelection: {CheckoutStatusSubmitting, CheckoutStatusIdle},
	CheckoutStatusSubmitting:      {CheckoutStatusSucceeded, CheckoutStatusFailed},
	CheckoutStatusSucceeded:       {CheckoutStatusIdle},
	CheckoutStatusFailed:          {CheckoutStatusRegionSelection, CheckoutStatusIdle},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckoutState is the checkout flow of one session. Region survives a failure
// so the user can retry without choosing it again.
type CheckoutState struct {
	Status  CheckoutStatus `json:"status"`
	Region  Region         `json:"region,omitempty"`
	OrderID ID             `json:"orderId,omitempty"`
	Error   string         `json:"error,omitempty"`
}
