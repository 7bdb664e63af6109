package core

import "bottlecore/pkg/domain"

// NewRulesEngine constructs an engine with no registered rules.
func NewRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewLedgerBoundsRule())
	engine.Register(NewLowStockRule())
	return engine
}
