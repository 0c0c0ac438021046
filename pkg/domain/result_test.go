package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock, Message: "stop"}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	if got := len(result.Warnings()); got != 1 {
		t.Fatalf("expected 1 warning, got %d", got)
	}
	err := RuleViolationError{Result: result}
	if !strings.Contains(err.Error(), "block: stop") {
		t.Fatalf("expected blocking message in error, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "warn") {
		t.Fatalf("warnings should not appear in error, got %q", err.Error())
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRuleViolationErrorIsInvariantViolation(t *testing.T) {
	var err error = fmt.Errorf("apply: %w", RuleViolationError{})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected rule violation to match ErrInvariantViolation")
	}
	if KindOf(err) != KindInvariantViolation {
		t.Fatalf("expected invariant kind, got %q", KindOf(err))
	}
	if (RuleViolationError{}).Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected empty violation message")
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
	if names := engine.Rules(); len(names) != 1 || names[0] != "warn" {
		t.Fatalf("unexpected rule names %v", names)
	}
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), emptyView{}, nil); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(context.Context, RuleView, []Change) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}

type emptyView struct{}

func (emptyView) FindCompany(string) (Company, bool, error) { return Company{}, false, nil }
func (emptyView) FindDrug(string) (Drug, bool, error)       { return Drug{}, false, nil }
func (emptyView) Timestamp() time.Time                      { return time.Time{} }
