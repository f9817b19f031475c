package enums

import "fmt"

// AllocationStatus tracks where an order line sits in the stock allocation lifecycle.
type AllocationStatus string

const (
	AllocationStatusPending   AllocationStatus = "pending"
	AllocationStatusAllocated AllocationStatus = "allocated"
	AllocationStatusPicked    AllocationStatus = "picked"
	AllocationStatusShipped   AllocationStatus = "shipped"
	AllocationStatusCancelled AllocationStatus = "cancelled"
)

var validAllocationStatuses = []AllocationStatus{
	AllocationStatusPending,
	AllocationStatusAllocated,
	AllocationStatusPicked,
	AllocationStatusShipped,
	AllocationStatusCancelled,
}

// String implements fmt.Stringer.
func (a AllocationStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AllocationStatus.
func (a AllocationStatus) IsValid() bool {
	for _, candidate := range validAllocationStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// HoldsStock reports whether a record in this status still owns lot/reservation quantity.
func (a AllocationStatus) HoldsStock() bool {
	switch a {
	case AllocationStatusAllocated, AllocationStatusPicked, AllocationStatusShipped:
		return true
	default:
		return false
	}
}

// StockHoldingAllocationStatuses lists every status for which HoldsStock is true.
func StockHoldingAllocationStatuses() []AllocationStatus {
	out := make([]AllocationStatus, 0, len(validAllocationStatuses))
	for _, candidate := range validAllocationStatuses {
		if candidate.HoldsStock() {
			out = append(out, candidate)
		}
	}
	return out
}

// ParseAllocationStatus converts raw input into an AllocationStatus.
func ParseAllocationStatus(value string) (AllocationStatus, error) {
	for _, candidate := range validAllocationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid allocation status %q", value)
}
