package core

import "pharmanet/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	for _, rule := range defaultRules() {
		engine.Register(rule)
	}
	return engine
}

func defaultRules() []domain.Rule {
	return []domain.Rule{
		LifecycleTransitionRule(),
		DrugCustodyRule(),
		DrugExpiryRule(),
	}
}

// changeValue extracts a typed record from a change side. Engines stage
// values; pointers are accepted for callers that build changes by hand.
func changeValue[T any](v any) (T, bool) {
	switch typed := v.(type) {
	case T:
		return typed, true
	case *T:
		if typed != nil {
			return *typed, true
		}
	}
	var zero T
	return zero, false
}
