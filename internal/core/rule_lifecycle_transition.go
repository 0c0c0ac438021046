package core

import (
	"context"
	"fmt"

	"pharmanet/pkg/domain"
)

// LifecycleTransitionRule blocks illegal stage moves of drugs and shipments.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

const lifecycleRuleName = "lifecycle_transition"

// drugTransitions lists the stages a drug may move to from each stage.
// Retailed is terminal.
var drugTransitions = map[domain.DrugStage]map[domain.DrugStage]struct{}{
	domain.DrugStageCreated:   toSet(domain.DrugStageInTransit),
	domain.DrugStageInTransit: toSet(domain.DrugStageDelivered),
	domain.DrugStageDelivered: toSet(domain.DrugStageInTransit, domain.DrugStageRetailed),
	domain.DrugStageRetailed:  {},
}

func (lifecycleTransitionRule) Name() string { return lifecycleRuleName }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		var msg string
		switch change.Entity {
		case domain.EntityDrug:
			msg = drugTransitionViolation(change)
		case domain.EntityShipment:
			msg = shipmentTransitionViolation(change)
		default:
			continue
		}
		if msg == "" {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     lifecycleRuleName,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   change.Entity,
			EntityID: change.Key,
		})
	}
	return res, nil
}

func drugTransitionViolation(change domain.Change) string {
	after, ok := changeValue[domain.Drug](change.After)
	if !ok {
		return fmt.Sprintf("drug %s has no state", domain.PrintableKey(change.Key))
	}
	if _, known := drugTransitions[after.Stage]; !known {
		return fmt.Sprintf("drug %s is set to invalid stage %q", domain.PrintableKey(change.Key), after.Stage)
	}
	before, ok := changeValue[domain.Drug](change.Before)
	if !ok {
		if after.Stage != domain.DrugStageCreated {
			return fmt.Sprintf("drug %s must be created in stage %s, got %s", domain.PrintableKey(change.Key), domain.DrugStageCreated, after.Stage)
		}
		return ""
	}
	if _, allowed := drugTransitions[before.Stage][after.Stage]; !allowed {
		return fmt.Sprintf("cannot move drug %s from stage %s to %s", domain.PrintableKey(change.Key), before.Stage, after.Stage)
	}
	return ""
}

func shipmentTransitionViolation(change domain.Change) string {
	after, ok := changeValue[domain.Shipment](change.After)
	if !ok {
		return fmt.Sprintf("shipment %s has no state", domain.PrintableKey(change.Key))
	}
	if len(after.Assets) == 0 {
		return fmt.Sprintf("shipment %s carries no assets", domain.PrintableKey(change.Key))
	}
	seen := make(map[string]struct{}, len(after.Assets))
	for _, asset := range after.Assets {
		if _, dup := seen[asset]; dup {
			return fmt.Sprintf("shipment %s lists asset %s twice", domain.PrintableKey(change.Key), domain.PrintableKey(asset))
		}
		seen[asset] = struct{}{}
	}
	before, hasBefore := changeValue[domain.Shipment](change.Before)
	switch change.Action {
	case domain.ActionCreate:
		if after.Status != domain.ShipmentInTransit {
			return fmt.Sprintf("shipment %s must be created %s, got %s", domain.PrintableKey(change.Key), domain.ShipmentInTransit, after.Status)
		}
		if hasBefore && before.Status != domain.ShipmentDelivered {
			return fmt.Sprintf("shipment %s replaces a shipment that is still %s", domain.PrintableKey(change.Key), before.Status)
		}
	case domain.ActionUpdate:
		if !hasBefore {
			return fmt.Sprintf("shipment %s update has no prior state", domain.PrintableKey(change.Key))
		}
		if before.Status != domain.ShipmentInTransit || after.Status != domain.ShipmentDelivered {
			return fmt.Sprintf("cannot move shipment %s from %s to %s", domain.PrintableKey(change.Key), before.Status, after.Status)
		}
		if !sameAssets(before.Assets, after.Assets) {
			return fmt.Sprintf("shipment %s assets changed after creation", domain.PrintableKey(change.Key))
		}
	}
	return ""
}

func sameAssets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
