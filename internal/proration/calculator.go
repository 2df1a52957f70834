package proration

import (
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/shopspring/decimal"
)

// Params describes a mid-cycle plan change to be prorated. Amounts are in
// integer minor units.
type Params struct {
	OldMonthlyPrice int64
	NewMonthlyPrice int64
	PeriodEnd       time.Time
	ChangeDate      time.Time
}

// Result is the outcome of a proration calculation.
type Result struct {
	// CreditAmount is the unused value of the old plan for the rest of the
	// period.
	CreditAmount int64
	// ChargeAmount is the prorated cost of the new plan for the rest of the
	// period.
	ChargeAmount int64
	// NetAmount is the price difference prorated over the remaining days,
	// rounded once, so rounding never favors either side twice. Negative
	// means the change is in the customer's favor.
	NetAmount     int64
	DaysRemaining int
	DaysInMonth   int
}

// Calculator computes day-based proration for plan changes.
type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Calculate prorates a plan change over the days remaining in the current
// billing period. Partial days count as full days in the customer's favor
// when crediting, so the remaining-day count is a ceiling. Rounding of the
// final amounts is half away from zero.
func (c *Calculator) Calculate(params Params) (*Result, error) {
	if params.OldMonthlyPrice < 0 || params.NewMonthlyPrice < 0 {
		return nil, ierr.NewError("invalid proration params").
			WithHint("Prices must be non-negative").
			Mark(ierr.ErrValidation)
	}

	daysInMonth := DaysInMonth(params.ChangeDate)
	daysRemaining := DaysRemaining(params.ChangeDate, params.PeriodEnd)
	if daysRemaining > daysInMonth {
		daysRemaining = daysInMonth
	}

	ratio := decimal.NewFromInt(int64(daysRemaining)).
		Div(decimal.NewFromInt(int64(daysInMonth)))

	credit := decimal.NewFromInt(params.OldMonthlyPrice).Mul(ratio).Round(0)
	charge := decimal.NewFromInt(params.NewMonthlyPrice).Mul(ratio).Round(0)
	net := decimal.NewFromInt(params.NewMonthlyPrice - params.OldMonthlyPrice).Mul(ratio).Round(0)

	return &Result{
		CreditAmount:  credit.IntPart(),
		ChargeAmount:  charge.IntPart(),
		NetAmount:     net.IntPart(),
		DaysRemaining: daysRemaining,
		DaysInMonth:   daysInMonth,
	}, nil
}

// CreditForRemainder is the refundable value of a subscription for the rest
// of its period, used when a subscription is force-cancelled.
func (c *Calculator) CreditForRemainder(monthlyPrice int64, now, periodEnd time.Time) int64 {
	res, err := c.Calculate(Params{
		OldMonthlyPrice: monthlyPrice,
		PeriodEnd:       periodEnd,
		ChangeDate:      now,
	})
	if err != nil {
		return 0
	}
	return res.CreditAmount
}

// DaysInMonth is the number of calendar days in the month containing t.
func DaysInMonth(t time.Time) int {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// DaysRemaining counts the days from now until end, rounding partial days up.
// Never negative.
func DaysRemaining(now, end time.Time) int {
	if !end.After(now) {
		return 0
	}
	d := end.Sub(now)
	days := int(d.Hours() / 24)
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
