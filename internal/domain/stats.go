package domain

// ApprovalLevelStat aggregates how long tickets took to reach an approval level.
type ApprovalLevelStat struct {
	ApprovalLevel ApprovalLevel `json:"approvalLevel"`
	AverageHours  float64       `json:"averageTime"`
	Count         int64         `json:"count"`
	Label         string        `json:"label"`
}

// ApprovalTimeStat aggregates end-to-end approval time per ticket type, in whole hours.
type ApprovalTimeStat struct {
	Type     string `json:"type"`
	Count    int64  `json:"count"`
	AvgHours int64  `json:"avgTime"`
	MaxHours int64  `json:"maxTime"`
	MinHours int64  `json:"minTime"`
}

// LevelLabel names an approval level for reporting.
func LevelLabel(level ApprovalLevel) string {
	if level == ApprovalLevelManager {
		return "Manager Approval"
	}
	return "CTO Approval"
}
