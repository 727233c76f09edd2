package models

// Finding is one emitted rule instance.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Defect marks a rule that could not be evaluated; the rest of the run
// is unaffected.
type Defect struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Item is a finding as listed inside a category report.
type Item struct {
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// CategoryReport is the per-category output structure.
type CategoryReport struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Items    []Item   `json:"items"`
	Summary  any      `json:"summary,omitempty"`
}

// ComplianceSummary for the violation category
type ComplianceSummary struct {
	Status          string `json:"status"` // "PASS" or "FAIL"
	TotalViolations int    `json:"total_violations"`
}

// HardeningSummary for the finding category
type HardeningSummary struct {
	TotalFindings int    `json:"total_findings"`
	Score         string `json:"score"` // "passed/max"
	Passed        int    `json:"passed"`
	Max           int    `json:"max"`
}

// ComplianceReport is the compliance view of a report.
type ComplianceReport struct {
	ComplianceSummary
	Items []Item `json:"violations"`
}

// HardeningReport is the hardening view of a report.
type HardeningReport struct {
	HardeningSummary
	Items []Item `json:"findings"`
}

// Suppressed is a finding removed by an exception.
type Suppressed struct {
	RuleID   string   `json:"rule_id"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Reason   string   `json:"reason"`
}

// ReportOutput is the machine-readable report.
type ReportOutput struct {
	SchemaVersion string           `json:"schema_version"`
	Document      string           `json:"document"`
	Outcome       string           `json:"outcome"` // "PASS" or "FAIL"
	Categories    []CategoryReport `json:"categories"`
	Suppressed    []Suppressed     `json:"suppressed,omitempty"`
	Defects       []Defect         `json:"defects,omitempty"`
}
