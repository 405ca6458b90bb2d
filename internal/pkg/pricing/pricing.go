package pricing

import (
	"errors"
	"math"
	"strings"
)

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

// Term is the billing cadence.
type Term string

const (
	TermMonthly Term = "monthly"
	TermAnnual  Term = "annual"
)

// DefaultCurrency is the only settlement currency of the platform today.
const DefaultCurrency = "USD"

const (
	monthlyDays = 30
	annualDays  = 365

	// annualDiscount applies to self-serve annual tiers: twelve months at 10% off.
	annualDiscount = 0.9
)

// Resolver errors are sentinel values so callers can branch on the expected
// outcomes instead of parsing messages.
var (
	ErrInvalidPlan    = errors.New("plan has no purchasable price")
	ErrAmountMismatch = errors.New("supplied amount does not match the plan price")
	ErrAmountRequired = errors.New("a positive amount is required for this plan")
)

// monthlyBaseCents holds the fixed self-serve tier prices in minor units.
var monthlyBaseCents = map[Plan]int64{
	PlanBasic:    4900,
	PlanPro:      9900,
	PlanBusiness: 24900,
}

// Quote is the resolved price for one checkout.
type Quote struct {
	Plan         Plan
	Term         Term
	AmountCents  int64
	Currency     string
	DurationDays int
}

// Input captures everything the resolver may consider. CallerAmountCents is
// an assertion for self-serve plans and the price itself for enterprise.
// DurationHintDays infers a term when none is supplied;
// DurationOverrideDays replaces the term's default duration.
type Input struct {
	Plan                 Plan
	Term                 Term
	CallerAmountCents    *int64
	DurationHintDays     int
	DurationOverrideDays *int
}

// NormalizePlan maps arbitrary caller spellings onto a known plan. Unknown
// values come back as-is so the resolver can reject them.
func NormalizePlan(raw string) Plan {
	p := Plan(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanBusiness, PlanEnterprise:
		return p
	default:
		return Plan(strings.TrimSpace(raw))
	}
}

// NormalizeTerm maps caller spellings onto a term, empty when unrecognized.
func NormalizeTerm(raw string) Term {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "month":
		return TermMonthly
	case "annual", "annually", "year", "yearly":
		return TermAnnual
	default:
		return ""
	}
}

// InferTerm derives a billing term from a duration hint in days. Durations
// under the monthly threshold stay unresolved and fall back to monthly.
func InferTerm(durationDays int) Term {
	switch {
	case durationDays >= 300:
		return TermAnnual
	case durationDays >= 20:
		return TermMonthly
	default:
		return ""
	}
}

// SelfServe reports whether the plan has a fixed price table entry.
func SelfServe(p Plan) bool {
	_, ok := monthlyBaseCents[p]
	return ok
}

// Resolve maps a plan selection to a validated quote.
func Resolve(in Input) (*Quote, error) {
	plan := NormalizePlan(string(in.Plan))

	term := in.Term
	if term == "" {
		term = InferTerm(in.DurationHintDays)
	}
	if term == "" {
		term = TermMonthly
	}

	duration := monthlyDays
	if term == TermAnnual {
		duration = annualDays
	}
	if in.DurationOverrideDays != nil && *in.DurationOverrideDays > 0 {
		duration = *in.DurationOverrideDays
	}

	var amount int64
	switch {
	case plan == PlanEnterprise:
		if in.CallerAmountCents == nil || *in.CallerAmountCents <= 0 {
			return nil, ErrAmountRequired
		}
		amount = *in.CallerAmountCents
		if amount < 1 {
			amount = 1
		}
	case SelfServe(plan):
		base := monthlyBaseCents[plan]
		amount = base
		if term == TermAnnual {
			amount = int64(math.Round(float64(base) * 12 * annualDiscount))
		}
		if in.CallerAmountCents != nil && *in.CallerAmountCents != amount {
			return nil, ErrAmountMismatch
		}
	default:
		// Free and unknown plans have nothing to check out.
		return nil, ErrInvalidPlan
	}

	return &Quote{
		Plan:         plan,
		Term:         term,
		AmountCents:  amount,
		Currency:     DefaultCurrency,
		DurationDays: duration,
	}, nil
}
