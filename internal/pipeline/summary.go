package pipeline

import (
	"fmt"

	"github.com/codahale/hdrhistogram"
	"github.com/samber/lo"
)

const (
	// summaryScale keeps three decimals in the integer histograms.
	summaryScale   = 1000
	summaryMax     = 1e9
	summarySigFigs = 3
)

// Distribution holds percentiles of a per-frame value across a batch.
type Distribution struct {
	Min  float64 `json:"min"`
	P10  float64 `json:"p10"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

func (d Distribution) String() string {
	return fmt.Sprintf("min=%.3f p10=%.3f p50=%.3f p90=%.3f max=%.3f", d.Min, d.P10, d.P50, d.P90, d.Max)
}

// Summary describes a batch of ratings by the frame medians of FWHM, HFR
// and SNR.
type Summary struct {
	Frames int          `json:"frames"`
	Failed int          `json:"failed"`
	Stars  Distribution `json:"stars"`
	FWHM   Distribution `json:"fwhm"`
	HFR    Distribution `json:"hfr"`
	SNR    Distribution `json:"snr"`
}

// Summarize builds a Summary of the successful results.
func Summarize(results []Result) Summary {
	ok := lo.Filter(results, func(r Result, _ int) bool { return r.Err == nil })
	rated := lo.Filter(ok, func(r Result, _ int) bool { return r.Statistics.Stars > 0 })
	return Summary{
		Frames: len(results),
		Failed: len(results) - len(ok),
		Stars:  distribution(lo.Map(ok, func(r Result, _ int) float64 { return float64(r.Statistics.Stars) })),
		FWHM:   distribution(lo.Map(rated, func(r Result, _ int) float64 { return r.Statistics.FWHM.Median })),
		HFR:    distribution(lo.Map(rated, func(r Result, _ int) float64 { return r.Statistics.HFR.Median })),
		SNR:    distribution(lo.Map(rated, func(r Result, _ int) float64 { return r.Statistics.SNR.Median })),
	}
}

func distribution(values []float64) Distribution {
	h := hdrhistogram.New(0, summaryMax, summarySigFigs)
	for _, v := range values {
		_ = h.RecordValue(int64(min(max(v, 0), summaryMax/summaryScale) * summaryScale))
	}
	if h.TotalCount() == 0 {
		return Distribution{}
	}
	at := func(q float64) float64 { return float64(h.ValueAtQuantile(q)) / summaryScale }
	return Distribution{
		Min:  float64(h.Min()) / summaryScale,
		P10:  at(10),
		P50:  at(50),
		P90:  at(90),
		Max:  float64(h.Max()) / summaryScale,
		Mean: h.Mean() / summaryScale,
	}
}
