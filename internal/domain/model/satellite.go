package model

// SatelliteState is the master's view of one satellite.
type SatelliteState struct {
	PartID          string        `json:"part"`
	LastReading     *PitchReading `json:"pitch"`
	LastUpdatedAtMs int64         `json:"lastUpdated"`
	Connected       bool          `json:"connected"`
}

// Telemetry is the pitch_update message a satellite streams to the room.
// A nil Pitch means the satellite has no current estimate.
type Telemetry struct {
	PartID      string        `json:"part"`
	Pitch       *PitchReading `json:"pitch"`
	TimestampMs int64         `json:"timestamp"`
}
