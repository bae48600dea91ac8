package photometry

import (
	"fmt"
	"strings"
)

// Measurement names a frame-level value of Statistics.
type Measurement int

const (
	Stars Measurement = iota
	Median
	MedianMAD
	Noise
	NoiseRatio
	EccentricityMax
	EccentricityMin
	EccentricityMean
	EccentricityMedian
	EccentricityMAD
	SNRMax
	SNRMin
	SNRMean
	SNRMedian
	SNRMAD
	SNRWeight
	FWHMMax
	FWHMMin
	FWHMMean
	FWHMMedian
	FWHMMAD
	HFRMax
	HFRMin
	HFRMean
	HFRMedian
	HFRMAD
	HFDMax
	HFDMin
	HFDMean
	HFDMedian
	HFDMAD
	ResidualMax
	ResidualMin
	ResidualMean
	ResidualMedian
	ResidualMAD
	numMeasurements
)

var measurementNames = [numMeasurements]string{
	"Stars", "Median", "MedianMAD", "Noise", "NoiseRatio",
	"EccentricityMax", "EccentricityMin", "EccentricityMean", "EccentricityMedian", "EccentricityMAD",
	"SNRMax", "SNRMin", "SNRMean", "SNRMedian", "SNRMAD", "SNRWeight",
	"FWHMMax", "FWHMMin", "FWHMMean", "FWHMMedian", "FWHMMAD",
	"HFRMax", "HFRMin", "HFRMean", "HFRMedian", "HFRMAD",
	"HFDMax", "HFDMin", "HFDMean", "HFDMedian", "HFDMAD",
	"ResidualMax", "ResidualMin", "ResidualMean", "ResidualMedian", "ResidualMAD",
}

func (m Measurement) String() string {
	if m < 0 || m >= numMeasurements {
		return fmt.Sprintf("Measurement(%d)", int(m))
	}
	return measurementNames[m]
}

// Measurements lists every measurement in declaration order.
func Measurements() []Measurement {
	out := make([]Measurement, numMeasurements)
	for i := range out {
		out[i] = Measurement(i)
	}
	return out
}

// ParseMeasurement looks a measurement up by name, ignoring case.
func ParseMeasurement(name string) (Measurement, error) {
	for i, n := range measurementNames {
		if strings.EqualFold(n, name) {
			return Measurement(i), nil
		}
	}
	return 0, fmt.Errorf("unknown measurement %q", name)
}

// Value returns the value of m. The second result is false for an unknown
// measurement.
func (s Statistics) Value(m Measurement) (float64, bool) {
	pick := func(ms MetricStats, offset Measurement) float64 {
		switch offset {
		case 0:
			return ms.Max
		case 1:
			return ms.Min
		case 2:
			return ms.Mean
		case 3:
			return ms.Median
		}
		return ms.MAD
	}

	switch {
	case m == Stars:
		return float64(s.Stars), true
	case m == Median:
		return s.Median, true
	case m == MedianMAD:
		return s.MedianMAD, true
	case m == Noise:
		return s.Noise, true
	case m == NoiseRatio:
		return s.NoiseRatio, true
	case m == SNRWeight:
		return s.SNRWeight(), true
	case m >= EccentricityMax && m <= EccentricityMAD:
		return pick(s.Eccentricity, m-EccentricityMax), true
	case m >= SNRMax && m <= SNRMAD:
		return pick(s.SNR, m-SNRMax), true
	case m >= FWHMMax && m <= FWHMMAD:
		return pick(s.FWHM, m-FWHMMax), true
	case m >= HFRMax && m <= HFRMAD:
		return pick(s.HFR, m-HFRMax), true
	case m >= HFDMax && m <= HFDMAD:
		return pick(s.HFD(), m-HFDMax), true
	case m >= ResidualMax && m <= ResidualMAD:
		return pick(s.Residual, m-ResidualMax), true
	}
	return 0, false
}
