package core

import (
	"context"
	"fmt"

	"pharmanet/pkg/domain"
)

// DrugCustodyRule keeps drug ownership pointed at a registered company until
// the unit is retailed, and freezes the identity fields of a drug.
func DrugCustodyRule() domain.Rule {
	return drugCustodyRule{}
}

type drugCustodyRule struct{}

const custodyRuleName = "drug_custody"

func (drugCustodyRule) Name() string { return custodyRuleName }

func (drugCustodyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(key, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     custodyRuleName,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityDrug,
			EntityID: key,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntityDrug {
			continue
		}
		after, ok := changeValue[domain.Drug](change.After)
		if !ok {
			continue
		}
		label := domain.PrintableKey(change.Key)
		if after.Owner == "" {
			block(change.Key, "drug %s has no owner", label)
			continue
		}
		if before, ok := changeValue[domain.Drug](change.Before); ok {
			if before.Stage == domain.DrugStageRetailed {
				block(change.Key, "drug %s was sold to a consumer and cannot change", label)
				continue
			}
			if before.Key != after.Key || before.Name != after.Name || before.SerialNo != after.SerialNo || before.Manufacturer != after.Manufacturer {
				block(change.Key, "drug %s identity fields cannot change", label)
				continue
			}
		}
		if after.Stage == domain.DrugStageRetailed {
			continue
		}
		if _, found, err := view.FindCompany(after.Owner); err != nil {
			return domain.Result{}, fmt.Errorf("custody owner lookup: %w", err)
		} else if !found {
			block(change.Key, "drug %s owner %s is not a registered company", label, domain.PrintableKey(after.Owner))
		}
	}
	return res, nil
}
