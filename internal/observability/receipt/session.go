package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"time"

	"github.com/distguard/distguard/internal/observability"
)

// MaxErrorLength is the maximum length for error strings in receipts.
const MaxErrorLength = 2048

// Session tracks command execution
type Session struct {
	ctx     context.Context
	start   time.Time
	command string
	args    []string
}

// Start session
func Start(ctx context.Context, cmd string, args []string) *Session {
	return &Session{
		ctx:     ctx,
		start:   time.Now(),
		command: cmd,
		args:    args,
	}
}

// Option configures receipt
type Option func(*Receipt)

// WithDocument records the evaluated document and its hash.
func WithDocument(path string) Option {
	return func(r *Receipt) {
		r.Document = fileRef(path)
	}
}

// WithExceptions records the exceptions file, if any.
func WithExceptions(path string) Option {
	return func(r *Receipt) {
		r.Exceptions = fileRef(path)
	}
}

// WithRuleSet records which rule packs were loaded.
func WithRuleSet(rs RuleSet) Option {
	return func(r *Receipt) {
		r.RuleSet = &rs
	}
}

// WithReport option
func WithReport(s ReportSummary) Option {
	return func(r *Receipt) {
		r.Report = &s
	}
}

// WithDrift option
func WithDrift(added, resolved, critical int, summary string) Option {
	return func(r *Receipt) {
		r.Drift = &DriftSummary{
			Added:    added,
			Resolved: resolved,
			Critical: critical,
			Summary:  summary,
		}
	}
}

func fileRef(path string) *FileRef {
	if path == "" {
		return nil
	}
	ref := &FileRef{Path: path}
	if hash, err := computeSHA256(path); err == nil {
		ref.SHA256 = hash
	}
	return ref
}

// Finish writes the receipt for the session. It is a no-op when receipts
// are disabled.
func (s *Session) Finish(err error, opts ...Option) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	args, redacted := RedactArgs(s.args)
	r := Receipt{
		SchemaVersion: ReceiptSchemaVersion,
		OpID:          observability.OpID(s.ctx),
		TsStart:       s.start.Format(time.RFC3339Nano),
		TsEnd:         time.Now().Format(time.RFC3339Nano),
		Command:       s.command,
		Args:          args,
		ArgsRedacted:  redacted,
		Result:        classify(err),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return w.Write(r)
}

func computeSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type exitCoder interface {
	ExitCode() int
}

// classify maps a command error to a result. Errors that carry exit code 1
// are policy outcomes, not failures.
func classify(err error) Result {
	if err == nil {
		return Result{Status: StatusSuccess}
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		if ec.ExitCode() == 1 {
			return Result{Status: StatusBlocked, ExitCode: 1}
		}
		return Result{Status: StatusFail, ExitCode: ec.ExitCode(), Error: truncateError(err.Error())}
	}
	return Result{Status: StatusFail, Error: truncateError(err.Error())}
}

func truncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	return s[:MaxErrorLength-3] + "..."
}
