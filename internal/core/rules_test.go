package core

import (
	"context"
	"testing"
	"time"

	"pharmanet/pkg/domain"
)

type stubView struct {
	companies map[string]domain.Company
	now       time.Time
}

func (v stubView) FindCompany(key string) (domain.Company, bool, error) {
	c, ok := v.companies[key]
	return c, ok, nil
}

func (v stubView) FindDrug(string) (domain.Drug, bool, error) { return domain.Drug{}, false, nil }

func (v stubView) Timestamp() time.Time { return v.now }

func evaluate(t *testing.T, rule domain.Rule, view domain.RuleView, changes ...domain.Change) domain.Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, changes)
	if err != nil {
		t.Fatalf("%s: %v", rule.Name(), err)
	}
	return res
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{lifecycleRuleName, custodyRuleName, expiryRuleName}
	if len(got) != len(want) {
		t.Fatalf("rules %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rules %v, want %v", got, want)
		}
	}
}

func TestLifecycleTransitionRuleDrugStages(t *testing.T) {
	rule := LifecycleTransitionRule()
	drug := func(stage domain.DrugStage) domain.Drug { return domain.Drug{Key: "d", Owner: "o", Stage: stage} }
	tests := []struct {
		name   string
		before *domain.Drug
		after  domain.Drug
		block  bool
	}{
		{"create", nil, drug(domain.DrugStageCreated), false},
		{"create in transit", nil, drug(domain.DrugStageInTransit), true},
		{"ship", ptr(drug(domain.DrugStageCreated)), drug(domain.DrugStageInTransit), false},
		{"deliver", ptr(drug(domain.DrugStageInTransit)), drug(domain.DrugStageDelivered), false},
		{"reship", ptr(drug(domain.DrugStageDelivered)), drug(domain.DrugStageInTransit), false},
		{"sell", ptr(drug(domain.DrugStageDelivered)), drug(domain.DrugStageRetailed), false},
		{"sell from factory", ptr(drug(domain.DrugStageCreated)), drug(domain.DrugStageRetailed), true},
		{"resurrect", ptr(drug(domain.DrugStageRetailed)), drug(domain.DrugStageDelivered), true},
		{"unknown stage", nil, drug("lost"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := domain.Change{Entity: domain.EntityDrug, Action: domain.ActionUpdate, Key: "d", After: tt.after}
			if tt.before != nil {
				change.Before = *tt.before
			} else {
				change.Action = domain.ActionCreate
			}
			if got := evaluate(t, rule, stubView{}, change).HasBlocking(); got != tt.block {
				t.Fatalf("blocking=%v, want %v", got, tt.block)
			}
		})
	}
}

func TestLifecycleTransitionRuleShipments(t *testing.T) {
	rule := LifecycleTransitionRule()
	inTransit := domain.Shipment{Key: "s", Assets: []string{"a", "b"}, Status: domain.ShipmentInTransit}
	delivered := inTransit
	delivered.Status = domain.ShipmentDelivered
	swapped := delivered
	swapped.Assets = []string{"b", "a"}
	dup := inTransit
	dup.Assets = []string{"a", "a"}

	tests := []struct {
		name   string
		action domain.Action
		before any
		after  any
		block  bool
	}{
		{"create", domain.ActionCreate, nil, inTransit, false},
		{"create over delivered", domain.ActionCreate, delivered, &inTransit, false},
		{"create over open", domain.ActionCreate, inTransit, inTransit, true},
		{"create delivered", domain.ActionCreate, nil, delivered, true},
		{"duplicate assets", domain.ActionCreate, nil, dup, true},
		{"empty", domain.ActionCreate, nil, domain.Shipment{Status: domain.ShipmentInTransit}, true},
		{"deliver", domain.ActionUpdate, inTransit, delivered, false},
		{"deliver twice", domain.ActionUpdate, delivered, delivered, true},
		{"assets changed", domain.ActionUpdate, inTransit, swapped, true},
		{"update without before", domain.ActionUpdate, nil, delivered, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := domain.Change{Entity: domain.EntityShipment, Action: tt.action, Key: "s", Before: tt.before, After: tt.after}
			if got := evaluate(t, rule, stubView{}, change).HasBlocking(); got != tt.block {
				t.Fatalf("blocking=%v, want %v", got, tt.block)
			}
		})
	}
}

func TestDrugCustodyRule(t *testing.T) {
	rule := DrugCustodyRule()
	view := stubView{companies: map[string]domain.Company{"m": {Key: "m"}, "t": {Key: "t"}}}
	base := domain.Drug{Key: "d", Name: "P", SerialNo: "1", Manufacturer: "m", Owner: "m", Stage: domain.DrugStageDelivered}

	moved := base
	moved.Owner = "t"
	stranger := base
	stranger.Owner = "nobody"
	renamed := moved
	renamed.SerialNo = "2"
	sold := base
	sold.Owner = "consumer-1"
	sold.Stage = domain.DrugStageRetailed
	resold := sold
	resold.Owner = "consumer-2"
	orphan := base
	orphan.Owner = ""

	tests := []struct {
		name          string
		before, after domain.Drug
		block         bool
	}{
		{"transfer to company", base, moved, false},
		{"transfer to unknown owner", base, stranger, true},
		{"identity change", base, renamed, true},
		{"retail to consumer", base, sold, false},
		{"change after retail", sold, resold, true},
		{"no owner", base, orphan, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := domain.Change{Entity: domain.EntityDrug, Action: domain.ActionUpdate, Key: "d", Before: tt.before, After: tt.after}
			if got := evaluate(t, rule, view, change).HasBlocking(); got != tt.block {
				t.Fatalf("blocking=%v, want %v", got, tt.block)
			}
		})
	}
}

func TestDrugExpiryRule(t *testing.T) {
	rule := DrugExpiryRule()
	view := stubView{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	for _, tt := range []struct {
		expiry string
		warn   bool
	}{
		{"2025-05-31", true},
		{"2025-06-02", false},
		{"31-12-2024", true},
		{"2024-12-31T00:00:00Z", true},
		{"soon", false},
	} {
		change := domain.Change{Entity: domain.EntityDrug, Action: domain.ActionUpdate, Key: "d", After: domain.Drug{ExpiryDate: tt.expiry}}
		res := evaluate(t, rule, view, change)
		if res.HasBlocking() {
			t.Fatalf("expiry must never block")
		}
		if got := len(res.Warnings()) == 1; got != tt.warn {
			t.Fatalf("expiry %q: warn=%v, want %v", tt.expiry, got, tt.warn)
		}
	}
	created := domain.Change{Entity: domain.EntityDrug, Action: domain.ActionCreate, Key: "d", After: domain.Drug{ExpiryDate: "2000-01-01"}}
	if len(evaluate(t, rule, view, created).Violations) != 0 {
		t.Fatalf("minting is not a transfer")
	}
}

func TestBlockingRuleRollsBackBatch(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	n := newNetwork(t)
	svc := NewService(n.ledger, WithRulesEngine(engine))
	height := n.ledger.Height()
	_, res, err := svc.MintDrug(n.ctx, manufacturerOrg, MintDrugInput{Name: drugName, SerialNo: "001", ManufacturingDate: "2024-01-01", ExpiryDate: farDate, ManufacturerCRN: "M1"})
	expectKind(t, err, domain.KindInvariantViolation)
	if !res.HasBlocking() {
		t.Fatalf("result should carry the blocking violation")
	}
	if n.ledger.Height() != height {
		t.Fatalf("blocked batch was committed")
	}
}

type blockAll struct{}

func (blockAll) Name() string { return "block_all" }

func (blockAll) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_all", Severity: domain.SeverityBlock, Message: "frozen", Entity: c.Entity, EntityID: c.Key})
	}
	return res, nil
}

func ptr[T any](v T) *T { return &v }
