// Package model contains domain models passed between layers.
package model

// ClockOffset relates a device clock to the time authority:
// authority time = local time + OffsetMs.
type ClockOffset struct {
	OffsetMs float64 `json:"offsetMs"`
	IsValid  bool    `json:"isValid"`
}

// Apply converts a local millisecond timestamp into authority time.
func (o ClockOffset) Apply(localMs int64) int64 {
	return localMs + int64(o.OffsetMs)
}
