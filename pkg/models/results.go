package models

// DeployResult is the outcome of an admission attempt. Rejections are not
// errors: Success is false and the Warnings/Conflicts carry the cause.
type DeployResult struct {
	Success           bool               `json:"success"`
	TestID            string             `json:"testId"`
	SlotID            string             `json:"slotId,omitempty"`
	TrafficAllocation *TrafficAllocation `json:"trafficAllocation,omitempty"`
	ContaminationRisk RiskLevel          `json:"contaminationRisk,omitempty"`
	Warnings          []string           `json:"warnings,omitempty"`
	Conflicts         []string           `json:"conflicts,omitempty"`
}

// RemoveResult is the outcome of a removal. Removing an unknown test yields
// Success false, never an error.
type RemoveResult struct {
	Success            bool    `json:"success"`
	TestID             string  `json:"testId"`
	ReleasedSlot       string  `json:"releasedSlot,omitempty"`
	ReallocatedTraffic float64 `json:"reallocatedTraffic"`
}
