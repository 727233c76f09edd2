// Package receipt writes a JSON evidence record for each distguard run.
package receipt

// ReceiptSchemaVersion current
const ReceiptSchemaVersion = "1.0"

// Receipt structure
type Receipt struct {
	SchemaVersion string         `json:"schema_version"`
	OpID          string         `json:"op_id"`
	TsStart       string         `json:"ts_start"`
	TsEnd         string         `json:"ts_end"`
	Command       string         `json:"command"`
	Args          []string       `json:"args"`
	ArgsRedacted  bool           `json:"args_redacted,omitempty"`
	Result        Result         `json:"result"`
	Document      *FileRef       `json:"document,omitempty"`
	Exceptions    *FileRef       `json:"exceptions,omitempty"`
	RuleSet       *RuleSet       `json:"rule_set,omitempty"`
	Report        *ReportSummary `json:"report,omitempty"`
	Drift         *DriftSummary  `json:"drift,omitempty"`
}

// Result statuses
const (
	StatusSuccess = "success"
	StatusBlocked = "blocked"
	StatusFail    = "fail"
)

// Result of the command. Blocked means the run completed and the selected
// policy packages failed.
type Result struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FileRef identifies an input file by path and content hash.
type FileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
}

// RuleSet describes the registry a check ran with.
type RuleSet struct {
	Builtin  bool   `json:"builtin"`
	Path     string `json:"path,omitempty"`
	Rules    int    `json:"rules"`
	MaxScore int    `json:"max_score"`
}

// ReportSummary detail
type ReportSummary struct {
	Packages   []string        `json:"packages"`
	Outcome    string          `json:"outcome"` // pass|fail
	Categories []CategoryCount `json:"categories"`
	Score      string          `json:"score,omitempty"`
	RulesHit   []RuleHit       `json:"rules_hit,omitempty"`
	Suppressed int             `json:"suppressed,omitempty"`
	Defects    int             `json:"defects,omitempty"`
}

// CategoryCount detail
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// RuleHit detail
type RuleHit struct {
	RuleID      string   `json:"rule_id"`
	Category    string   `json:"category"`
	ControlRefs []string `json:"control_refs,omitempty"`
}

// DriftSummary detail
type DriftSummary struct {
	Added    int    `json:"added"`
	Resolved int    `json:"resolved"`
	Critical int    `json:"critical,omitempty"`
	Summary  string `json:"summary,omitempty"`
}
