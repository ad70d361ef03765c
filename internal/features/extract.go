package features

import (
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/payment"
)

// #region extractor
// Extractor turns a request, vault snapshot and history snapshot into a Vector.
type Extractor struct {
	config ExtractorConfig
}

// NewExtractor creates an extractor with the given configuration.
func NewExtractor(config ExtractorConfig) *Extractor {
	return &Extractor{config: config}
}

// Extract is a pure function of its inputs. The only nondeterminism is the
// jitter slot, which is drawn from a PCG stream seeded with seed.
func (e *Extractor) Extract(req payment.Request, vault payment.VaultStatus, hist experience.Snapshot, seed uint64) Vector {
	var v Vector
	amount := req.AmountFloat()

	v[SlotAmount] = e.amountScale(amount)
	v[SlotAllowanceUsage] = usage(amount, decimalFloat(vault.RemainingAllowance))
	v[SlotBalanceUsage] = usage(amount, decimalFloat(vault.Balance))
	v[SlotDailyUsage] = dailyUsage(decimalFloat(vault.DailySpent), decimalFloat(vault.DailyLimit))

	recipientRecs := hist.ForRecipient(req.Recipient)
	v[SlotRecipientTrust] = recipientTrust(vault.Whitelisted, recipientRecs)
	v[SlotPurposeValidity] = PurposeScore(req.Purpose)
	v[SlotTimeOfDay] = TimeOfDayScore(req.Timestamp.Hour())
	v[SlotFrequency] = e.frequency(req.Recipient, vault.Whitelisted, hist)
	v[SlotAmountAnomaly] = e.amountAnomaly(amount, hist)
	v[SlotSuccessRate] = experience.SuccessRate(hist.Recent(e.config.FrequencyWindow), 0.5)
	if e.config.DepthSaturation > 0 {
		v[SlotHistoryDepth] = clamp(float64(hist.Len()) / float64(e.config.DepthSaturation))
	}

	if e.config.JitterScale > 0 {
		rng := rand.New(rand.NewPCG(seed, 0x6a17))
		v[SlotJitter] = rng.Float64() * e.config.JitterScale
	}
	return v
}

// #endregion extractor

// #region amount
func (e *Extractor) amountScale(amount float64) float64 {
	if amount <= 0 || e.config.ReferenceAmount <= 0 {
		return 0
	}
	return clamp(math.Log10(1+amount) / math.Log10(1+e.config.ReferenceAmount))
}

// amountAnomaly maps the population z-score of amount against the recent
// window to [0,1] (z of 3 saturates). Fewer than 3 records yield 0.
func (e *Extractor) amountAnomaly(amount float64, hist experience.Snapshot) float64 {
	z := AmountZScore(amount, hist.Recent(e.config.AnomalyWindow))
	return clamp(z / 3)
}

// AmountZScore returns |amount - mean| / stddev over records using population
// statistics. It returns 0 when fewer than 3 records are available.
func AmountZScore(amount float64, records []experience.Record) float64 {
	if len(records) < 3 {
		return 0
	}
	xs := make([]float64, len(records))
	for i, r := range records {
		xs[i] = r.AmountFloat()
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	diff := math.Abs(amount - mean)
	if std < 1e-9 {
		if diff < 1e-9 {
			return 0
		}
		return 3
	}
	return diff / std
}

func usage(amount, capacity float64) float64 {
	if capacity <= 0 {
		return 1
	}
	return clamp(amount / capacity)
}

func dailyUsage(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return clamp(spent / limit)
}

// #endregion amount

// #region recipient
// recipientTrust scores the counterparty. Whitelisted recipients start high
// and are discounted by observed failures; unknown ones start low.
func recipientTrust(whitelisted bool, recs []experience.Record) float64 {
	switch {
	case whitelisted:
		return clamp(0.7 + 0.3*experience.SuccessRate(recs, 1))
	case len(recs) > 0:
		return clamp(0.3 + 0.5*experience.SuccessRate(recs, 0))
	default:
		return 0.2
	}
}

func (e *Extractor) frequency(recipient string, whitelisted bool, hist experience.Snapshot) float64 {
	count := 0
	for _, r := range hist.Recent(e.config.FrequencyWindow) {
		if r.Recipient == recipient {
			count++
		}
	}
	f := 0.0
	if e.config.FrequencySaturation > 0 {
		f = clamp(float64(count) / e.config.FrequencySaturation)
	}
	if whitelisted && f < 0.6 {
		f = 0.6
	}
	return f
}

// #endregion recipient

// #region purpose
var legitimateTerms = map[string]struct{}{
	"api": {}, "service": {}, "subscription": {}, "invoice": {}, "hosting": {},
	"compute": {}, "data": {}, "license": {}, "payment": {}, "salary": {},
	"utility": {}, "cloud": {}, "storage": {}, "infrastructure": {}, "fee": {},
}

var suspiciousTerms = map[string]struct{}{
	"test": {}, "misc": {}, "miscellaneous": {}, "urgent": {}, "gift": {},
	"anonymous": {}, "mixer": {}, "casino": {}, "gamble": {}, "lottery": {},
	"bonus": {}, "unknown": {}, "asap": {}, "prize": {},
}

// PurposeScore rates the free-text purpose in [0,1]: 0.5 baseline, +0.15 per
// legitimate term (capped at +0.5), -0.25 per suspicious term.
func PurposeScore(purpose string) float64 {
	tokens := tokenize(purpose)
	if len(tokens) == 0 {
		return 0
	}
	var legit, suspicious int
	for _, t := range tokens {
		if _, ok := legitimateTerms[t]; ok {
			legit++
		}
		if _, ok := suspiciousTerms[t]; ok {
			suspicious++
		}
	}
	bonus := math.Min(0.15*float64(legit), 0.5)
	return clamp(0.5 + bonus - 0.25*float64(suspicious))
}

// SuspiciousPurpose reports the suspicious terms found in purpose.
func SuspiciousPurpose(purpose string) []string {
	var found []string
	for _, t := range tokenize(purpose) {
		if _, ok := suspiciousTerms[t]; ok {
			found = append(found, t)
		}
	}
	return found
}

// #endregion purpose

// #region time
// TimeOfDayScore is 1.0 in business hours, 0.6 in the shoulders and 0.1 at night.
func TimeOfDayScore(hour int) float64 {
	switch {
	case hour >= 9 && hour < 18:
		return 1.0
	case (hour >= 7 && hour < 9) || (hour >= 18 && hour < 22):
		return 0.6
	default:
		return 0.1
	}
}

// #endregion time

// #region helpers
// tokenize splits text into lowercase tokens on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func decimalFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}

// clamp restricts v to [0, 1]. NaN maps to 0.
func clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
