package similarity

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/danielpatrickdp/agentvault/decision-engine/internal/experience"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/features"
	"github.com/danielpatrickdp/agentvault/decision-engine/internal/retrieval"
)

// EmbeddingDim is the length of an embedding.
const EmbeddingDim = 10

const (
	embAmount = iota
	embHourSin
	embHourCos
	embPurpose
	embWords
	embRecipient = embWords + wordBuckets
)

const wordBuckets = 4

// Encoder builds embeddings from request fields. It implements
// retrieval.Encoder for experience records.
type Encoder struct {
	ReferenceAmount float64
}

// Encode embeds a request.
func (e Encoder) Encode(recipient string, amount decimal.Decimal, purpose string, ts time.Time) []float64 {
	v := make([]float64, EmbeddingDim)

	a, _ := amount.Float64()
	ref := e.ReferenceAmount
	if ref <= 0 {
		ref = 10000
	}
	v[embAmount] = math.Min(1, math.Log10(1+math.Max(0, a))/math.Log10(1+ref))

	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	angle := 2 * math.Pi * hour / 24
	v[embHourSin] = 0.5 * math.Sin(angle)
	v[embHourCos] = 0.5 * math.Cos(angle)

	v[embPurpose] = features.PurposeScore(purpose)

	words := retrieval.Keywords(purpose)
	for _, w := range words {
		v[embWords+int(hash(w)%wordBuckets)]++
	}
	if n := float64(len(words)); n > 0 {
		for i := 0; i < wordBuckets; i++ {
			v[embWords+i] /= math.Sqrt(n)
		}
	}

	rAngle := 2 * math.Pi * float64(hash(recipient)%360) / 360
	v[embRecipient] = 0.5 * math.Cos(rAngle)
	v[embRecipient+1] = 0.5 * math.Sin(rAngle)
	return v
}

// EncodeRecord implements retrieval.Encoder.
func (e Encoder) EncodeRecord(rec experience.Record) []float64 {
	return e.Encode(rec.Recipient, rec.Amount, rec.Purpose, rec.Timestamp)
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
