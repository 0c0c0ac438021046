package core

import (
	"context"
	"fmt"
	"time"

	"pharmanet/pkg/domain"
)

var expiryLayouts = []string{time.DateOnly, time.RFC3339, "02-01-2006"}

// DrugExpiryRule warns when an expired unit keeps moving through the chain.
// Expiry dates that do not parse are left alone.
func DrugExpiryRule() domain.Rule {
	return drugExpiryRule{}
}

type drugExpiryRule struct{}

const expiryRuleName = "drug_expiry"

func (drugExpiryRule) Name() string { return expiryRuleName }

func (drugExpiryRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	now := view.Timestamp()
	for _, change := range changes {
		if change.Entity != domain.EntityDrug || change.Action != domain.ActionUpdate {
			continue
		}
		drug, ok := changeValue[domain.Drug](change.After)
		if !ok {
			continue
		}
		expiry, ok := parseExpiry(drug.ExpiryDate)
		if !ok || !expiry.Before(now) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     expiryRuleName,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("drug %s %s expired on %s", drug.Name, drug.SerialNo, drug.ExpiryDate),
			Entity:   domain.EntityDrug,
			EntityID: change.Key,
		})
	}
	return res, nil
}

func parseExpiry(value string) (time.Time, bool) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
