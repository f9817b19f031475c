package enums

import "fmt"

// LotStatus marks whether a received lot may be drawn from.
type LotStatus string

const (
	LotStatusActive   LotStatus = "active"
	LotStatusInactive LotStatus = "inactive"
)

var validLotStatuses = []LotStatus{
	LotStatusActive,
	LotStatusInactive,
}

// String implements fmt.Stringer.
func (l LotStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LotStatus.
func (l LotStatus) IsValid() bool {
	for _, candidate := range validLotStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLotStatus converts raw input into a LotStatus.
func ParseLotStatus(value string) (LotStatus, error) {
	for _, candidate := range validLotStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lot status %q", value)
}
