package billing

import (
	"github.com/saasops/backend/internal/domain/shared"
	"github.com/saasops/backend/internal/domain/shared/valueobject"
)

// PlanTier identifies a pricing tier. Tiers are unique across the catalog.
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierStarter    PlanTier = "starter"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// PlanInterval is the billing period length
type PlanInterval string

const (
	PlanIntervalMonth PlanInterval = "month"
	PlanIntervalYear  PlanInterval = "year"
)

// SubscriptionPlan describes what a tier costs and what it unlocks.
// Plans are global, not organization-scoped.
type SubscriptionPlan struct {
	shared.BaseAggregateRoot
	Tier          PlanTier          `gorm:"type:varchar(30);not null;uniqueIndex"`
	Name          string            `gorm:"type:varchar(100);not null"`
	Interval      PlanInterval      `gorm:"type:varchar(10);not null;default:'month'"`
	Price         valueobject.Money `gorm:"type:jsonb"`
	Features      map[string]bool   `gorm:"serializer:json"`
	MaxSeats      *int              // nil means unlimited
	TrialDays     int               `gorm:"not null;default:0"`
	StripePriceID string            `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// NewSubscriptionPlan creates a plan for a tier
func NewSubscriptionPlan(tier PlanTier, name string, interval PlanInterval, price valueobject.Money) (*SubscriptionPlan, error) {
	if tier == "" {
		return nil, shared.NewDomainError("INVALID_TIER", "Plan tier cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Plan name cannot be empty")
	}
	if interval != PlanIntervalMonth && interval != PlanIntervalYear {
		return nil, shared.NewDomainError("INVALID_INTERVAL", "Plan interval must be month or year")
	}
	if price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Plan price cannot be negative")
	}

	return &SubscriptionPlan{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Tier:              tier,
		Name:              name,
		Interval:          interval,
		Price:             price,
		Features:          make(map[string]bool),
	}, nil
}

// HasFeature reports whether the plan includes a feature flag
func (p *SubscriptionPlan) HasFeature(feature string) bool {
	return p.Features[feature]
}

// SeatCeiling returns the maximum seats allowed, or -1 for unlimited
func (p *SubscriptionPlan) SeatCeiling() int {
	if p.MaxSeats == nil {
		return -1
	}
	return *p.MaxSeats
}

func intPtr(v int) *int { return &v }

// DefaultPlanCatalog returns the built-in tiers used to seed a fresh install
func DefaultPlanCatalog() []*SubscriptionPlan {
	free := mustPlan(PlanTierFree, "Free", PlanIntervalMonth, valueobject.ZeroMoney(valueobject.DefaultCurrency))
	free.MaxSeats = intPtr(3)
	free.Features = map[string]bool{"core": true}

	starter := mustPlan(PlanTierStarter, "Starter", PlanIntervalMonth, mustMoney(1900))
	starter.MaxSeats = intPtr(10)
	starter.TrialDays = 14
	starter.Features = map[string]bool{"core": true, "reports": true}

	pro := mustPlan(PlanTierPro, "Pro", PlanIntervalMonth, mustMoney(4900))
	pro.MaxSeats = intPtr(50)
	pro.TrialDays = 14
	pro.Features = map[string]bool{"core": true, "reports": true, "api_access": true, "sso": true}

	enterprise := mustPlan(PlanTierEnterprise, "Enterprise", PlanIntervalYear, mustMoney(99900))
	enterprise.Features = map[string]bool{"core": true, "reports": true, "api_access": true, "sso": true, "audit_log": true}

	return []*SubscriptionPlan{free, starter, pro, enterprise}
}

func mustPlan(tier PlanTier, name string, interval PlanInterval, price valueobject.Money) *SubscriptionPlan {
	p, err := NewSubscriptionPlan(tier, name, interval, price)
	if err != nil {
		panic(err)
	}
	return p
}

func mustMoney(cents int64) valueobject.Money {
	m, err := valueobject.NewMoneyFromCents(cents, valueobject.DefaultCurrency)
	if err != nil {
		panic(err)
	}
	return m
}
