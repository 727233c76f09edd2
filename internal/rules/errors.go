package rules

import "fmt"

// DefinitionError is a fatal problem in a rule pack: a duplicate rule id, a
// malformed clause or an unresolved helper or function reference.
type DefinitionError struct {
	Source string
	RuleID string
	Reason string
}

func (e *DefinitionError) Error() string {
	switch {
	case e.RuleID != "" && e.Source != "":
		return fmt.Sprintf("rule pack %s: rule %s: %s", e.Source, e.RuleID, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("rule pack %s: %s", e.Source, e.Reason)
	default:
		return fmt.Sprintf("rule definition: %s", e.Reason)
	}
}

func defErr(source, ruleID, format string, args ...any) *DefinitionError {
	return &DefinitionError{Source: source, RuleID: ruleID, Reason: fmt.Sprintf(format, args...)}
}
