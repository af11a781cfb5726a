package eligibility

import (
	"math"
	"strconv"
	"strings"

	"github.com/sprouthealth/intake/internal/platform/x12"
)

// EB positional fields (1-based element index within the segment).
const (
	ebInfoCode     = 1  // eligibility or benefit information code
	ebServiceType  = 3  // service type code
	ebTimeQual     = 6  // time period qualifier
	ebAmount       = 7  // monetary amount
	ebPercent      = 8  // percent, encoded as a fraction (0.20 -> 20%)
	ebProcedure    = 13 // procedure identifier, optionally qualified ("HC:90834")
)

// EB01 benefit information codes.
const (
	benefitActive      = "1"
	benefitCoinsurance = "A"
	benefitCopay       = "B"
	benefitDeductible  = "C"
)

// Deductible time period qualifiers: plan total vs. remaining.
const (
	timeQualCalendarYear = "23"
	timeQualRemaining    = "29"
)

// inactiveBenefitCodes are EB01 values meaning coverage exists but is not
// active for the member.
var inactiveBenefitCodes = map[string]bool{
	"6": true, // inactive
	"7": true, // inactive - pending eligibility update
	"8": true, // inactive - pending investigation
	"I": true, // non-covered
	"V": true, // cannot process
}

// Psychiatric-services CPT range recognized as mental-health care.
const (
	psychProcedureMin = 90785
	psychProcedureMax = 90899
)

// Extraction is the coverage extractor's output: the raw eligibility
// determination plus whatever benefit figures the response disclosed.
type Extraction struct {
	Eligible Tristate
	Coverage *Coverage

	// Unclear is set when general active coverage exists but no
	// mental-health-specific benefit was found. It is a routing signal for
	// manual review, not a hard error.
	Unclear bool

	// InactiveSeen is set when the payer explicitly reported inactive or
	// non-covered benefits.
	InactiveSeen bool
}

// ExtractCoverage walks a decoded 271 and produces the normalized coverage
// structure. Responses carrying AAA error segments must be routed to the
// error classifier instead; this function assumes none are present.
func ExtractCoverage(tx *x12.Transaction) Extraction {
	ebs := tx.SegmentsByTag("EB")

	cov := &Coverage{}
	var (
		mentalHealth    bool
		generalActive   bool
		inactiveSeen    bool
		deductibleTotal *float64
		deductibleLeft  *float64
	)

	for i := range ebs {
		eb := &ebs[i]
		info := eb.Element(ebInfoCode)

		switch {
		case info == benefitActive:
			if mentalHealthBenefit(eb) {
				mentalHealth = true
			} else {
				generalActive = true
			}
		case inactiveBenefitCodes[info]:
			inactiveSeen = true
		case info == benefitCopay:
			if amt, ok := parseMoney(eb.Element(ebAmount)); ok {
				cov.Copay = &Money{Amount: amt, Currency: "USD"}
			}
		case info == benefitDeductible:
			amt, ok := parseMoney(eb.Element(ebAmount))
			if !ok {
				continue
			}
			// Other period qualifiers (year to date, per admission, ...)
			// carry figures this flow has no use for.
			switch eb.Element(ebTimeQual) {
			case timeQualRemaining:
				v := amt
				deductibleLeft = &v
			case timeQualCalendarYear, "":
				v := amt
				deductibleTotal = &v
			}
		case info == benefitCoinsurance:
			if pct, ok := parsePercent(eb.Element(ebPercent)); ok {
				cov.CoinsurancePercent = &pct
			}
		}
	}

	if deductibleTotal != nil {
		d := &Deductible{Amount: *deductibleTotal, Currency: "USD"}
		if deductibleLeft != nil {
			met := roundMoney(*deductibleTotal - *deductibleLeft)
			if met >= 0 {
				d.AmountMet = &met
			}
		}
		cov.Deductible = d
	}

	// Malformed dates are dropped, never defaulted.
	for _, dtp := range tx.SegmentsByTag("DTP") {
		raw := dtp.Element(3)
		switch dtp.Element(1) {
		case x12.DateQualifierEffective:
			if t, err := x12.ParseDate(raw); err == nil {
				cov.EffectiveDate = &t
			}
		case x12.DateQualifierTermination:
			if t, err := x12.ParseDate(raw); err == nil {
				cov.TerminationDate = &t
			}
		}
	}

	ex := Extraction{Coverage: cov, InactiveSeen: inactiveSeen}
	switch {
	case mentalHealth:
		cov.MentalHealthCovered = true
		ex.Eligible = TriTrue
	case generalActive:
		ex.Eligible = TriUnknown
		ex.Unclear = true
	default:
		ex.Eligible = TriFalse
	}
	return ex
}

// mentalHealthBenefit reports whether an active EB segment is specific to
// mental-health care, either by service type code or by a procedure code in
// the psychiatric-services range.
func mentalHealthBenefit(eb *x12.Segment) bool {
	switch eb.Element(ebServiceType) {
	case x12.ServiceTypeMentalHealth, x12.ServiceTypePsychiatric:
		return true
	}

	proc := eb.Element(ebProcedure)
	if idx := strings.LastIndex(proc, ":"); idx >= 0 {
		proc = proc[idx+1:]
	}
	if n, err := strconv.Atoi(proc); err == nil {
		return n >= psychProcedureMin && n <= psychProcedureMax
	}
	return false
}

func parseMoney(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return roundMoney(v), true
}

// parsePercent reads the protocol's fractional coinsurance encoding and
// returns a whole percentage. A bare integer above 1 is taken as a percent
// already; payers disagree on the encoding.
func parsePercent(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if v <= 1 {
		v *= 100
	}
	pct := int(math.Round(v))
	if pct > 100 {
		return 0, false
	}
	return pct, true
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
