// Package store persists detected setups, account risk snapshots and gate
// decisions so the engine can run without a live detection pipeline.
package store

import (
	"context"
	"time"

	"spx-engine/internal/gate"
	"spx-engine/internal/models"
	"spx-engine/internal/providers"
)

// DataStore defines the interface for engine persistence. It satisfies
// providers.SetupProvider and providers.RiskContextProvider.
type DataStore interface {
	providers.SetupProvider
	providers.RiskContextProvider

	// Setups
	SaveSetup(ctx context.Context, setup models.Setup) error
	UpdateSetupStatus(ctx context.Context, id string, status models.SetupStatus, at time.Time) error
	GetSetups(ctx context.Context, filter SetupFilter) ([]models.Setup, error)

	// Risk contexts
	SaveRiskContext(ctx context.Context, rc models.RiskContext) error

	// Gate decisions
	SaveGateDecision(ctx context.Context, decision gate.EnvironmentGateDecision) error
	GetGateDecisions(ctx context.Context, filter DecisionFilter) ([]GateDecisionRecord, error)

	Close() error
}

// SetupFilter filters setup queries. SessionDate is YYYY-MM-DD in ET.
type SetupFilter struct {
	SessionDate string
	Status      models.SetupStatus
	Type        models.SetupType
	Limit       int
}

// DecisionFilter filters gate decision queries.
type DecisionFilter struct {
	StartDate time.Time
	EndDate   time.Time
	Passed    *bool
	Limit     int
}

// GateDecisionRecord is a persisted gate decision.
type GateDecisionRecord struct {
	ID            int64                        `json:"id"`
	SessionDate   string                       `json:"sessionDate"`
	Passed        bool                         `json:"passed"`
	BlockingCheck string                       `json:"blockingCheck,omitempty"`
	Decision      gate.EnvironmentGateDecision `json:"decision"`
}
