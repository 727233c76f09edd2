package override

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distguard/distguard/internal/models"
	"github.com/distguard/distguard/internal/report"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantLen int
		wantErr string
	}{
		{
			name: "valid",
			data: `exceptions:
  - rule_id: COMP-05
    reason: upstream limits
  - message_pattern: "^ACL entry .* allows any client$"
    reason: public resolver
`,
			wantLen: 2,
		},
		{name: "empty", data: "", wantLen: 0},
		{
			name:    "missing reason",
			data:    "exceptions:\n  - rule_id: COMP-05\n",
			wantErr: "reason is required",
		},
		{
			name:    "no matcher",
			data:    "exceptions:\n  - reason: because\n",
			wantErr: "needs rule_id or message_pattern",
		},
		{
			name:    "bad pattern",
			data:    "exceptions:\n  - message_pattern: \"(\"\n    reason: r\n",
			wantErr: "invalid message_pattern",
		},
		{
			name:    "all errors reported",
			data:    "exceptions:\n  - rule_id: A-01\n  - reason: r\n",
			wantErr: "exception 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.data))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Parse() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if set.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", set.Len(), tt.wantLen)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	set, err := Parse([]byte(`exceptions:
  - rule_id: BASE-09
    message_pattern: "::/0"
    reason: v6 open on purpose
  - message_pattern: "^backend 10\\."
    reason: lab backends
`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		f      models.Finding
		reason string
	}{
		{models.Finding{RuleID: "BASE-09", Message: "ACL entry ::/0 allows any client"}, "v6 open on purpose"},
		{models.Finding{RuleID: "BASE-09", Message: "ACL entry 0.0.0.0/0 allows any client"}, ""},
		{models.Finding{RuleID: "COMP-06", Message: "backend 10.0.0.1:853 does not validate its TLS certificate"}, "lab backends"},
		{models.Finding{RuleID: "COMP-06", Message: "backend 192.0.2.1:853 does not validate its TLS certificate"}, ""},
	}
	for _, tt := range tests {
		ex, ok := set.Match(tt.f)
		if ok != (tt.reason != "") || ex.Reason != tt.reason {
			t.Errorf("Match(%s %q) = %q, %v; want %q", tt.f.RuleID, tt.f.Message, ex.Reason, ok, tt.reason)
		}
	}
}

func TestApply(t *testing.T) {
	rep := report.New([]models.Finding{
		{RuleID: "COMP-05", Category: models.CategoryViolation, Message: "no query rate limiting rule is configured"},
		{RuleID: "HA-06", Category: models.CategoryFinding, Message: "default load-balancing policy is not set"},
	}, nil, 9)

	set, err := Parse([]byte("exceptions:\n  - rule_id: COMP-05\n    reason: upstream\n"))
	if err != nil {
		t.Fatal(err)
	}

	filtered, suppressed := Apply(rep, set)
	if filtered.Compliance().Status != report.StatusPass {
		t.Error("compliance should pass once the only violation is suppressed")
	}
	if len(suppressed) != 1 || suppressed[0].Reason != "upstream" || suppressed[0].Category != models.CategoryViolation {
		t.Errorf("suppressed = %+v", suppressed)
	}
	if filtered.Count(models.CategoryFinding) != 1 {
		t.Error("unmatched findings must be kept")
	}

	same, none := Apply(rep, &Set{})
	if same != rep || none != nil {
		t.Error("an empty set should return the report unchanged")
	}
}

func TestLoad(t *testing.T) {
	set, err := Load("")
	if err != nil || set.Len() != 0 {
		t.Fatalf("Load(\"\") = %v, %v", set, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}

	p := filepath.Join(t.TempDir(), "exceptions.yaml")
	if err := os.WriteFile(p, []byte("exceptions:\n  - rule_id: HA-01\n    reason: single site\n"), 0644); err != nil {
		t.Fatal(err)
	}
	set, err = Load(p)
	if err != nil || set.Len() != 1 {
		t.Errorf("Load() = %v, %v", set, err)
	}
}
