package alerts

import "github.com/Buchi-dev/puretrack/internal/models"

// band is one severity range; Min is inclusive unless MinExclusive is set,
// Max is exclusive unless MaxInclusive is set (both are set on the upper pH
// bands, (8.5, 9.0] and (9.0, 9.5]).
type band struct {
	Min, Max     float64
	MinExclusive bool
	MaxInclusive bool
	Severity     models.Severity
}

// Thresholds holds the per-parameter Advisory and Warning bands. They come
// from DefaultThresholds only; no config setting overrides them, and the
// Critical edges are fixed inside Evaluate. The defaults reconcile the
// source's differing email-template and alert-engine tables.
type Thresholds struct {
	PH        []band
	TDS       []band
	Turbidity []band
}

// DefaultThresholds returns the band schema named per parameter.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PH: []band{
			{Min: 6.0, Max: 6.5, Severity: models.SeverityAdvisory},
			{Min: 8.5, Max: 9.0, MinExclusive: true, MaxInclusive: true, Severity: models.SeverityAdvisory},
			{Min: 5.5, Max: 6.0, Severity: models.SeverityWarning},
			{Min: 9.0, Max: 9.5, MinExclusive: true, MaxInclusive: true, Severity: models.SeverityWarning},
			// Critical: value < 5.5 or > 9.5 — checked directly in Evaluate.
		},
		TDS: []band{
			{Min: 500, Max: 900, Severity: models.SeverityAdvisory},
			{Min: 900, Max: 1200, Severity: models.SeverityWarning},
			// Critical: >= 1200
		},
		Turbidity: []band{
			{Min: 1, Max: 5, Severity: models.SeverityAdvisory},
			{Min: 5, Max: 10, Severity: models.SeverityWarning},
			// Critical: >= 10
		},
	}
}

// Evaluate returns the breached severity for value and the threshold that
// was crossed (the edge nearest the nominal range), or ok=false if value is
// within all bands (nominal).
func (t Thresholds) Evaluate(param models.Parameter, value float64) (sev models.Severity, threshold float64, ok bool) {
	switch param {
	case models.ParamPH:
		if value < 5.5 {
			return models.SeverityCritical, 5.5, true
		}
		if value > 9.5 {
			return models.SeverityCritical, 9.5, true
		}
		return evaluateBands(t.PH, value)
	case models.ParamTDS:
		if value >= 1200 {
			return models.SeverityCritical, 1200, true
		}
		return evaluateBands(t.TDS, value)
	case models.ParamTurbidity:
		if value >= 10 {
			return models.SeverityCritical, 10, true
		}
		return evaluateBands(t.Turbidity, value)
	}
	return "", 0, false
}

func evaluateBands(bands []band, value float64) (models.Severity, float64, bool) {
	var best *band
	for i := range bands {
		b := &bands[i]
		inBand := (value > b.Min || (!b.MinExclusive && value == b.Min)) &&
			(value < b.Max || (b.MaxInclusive && value == b.Max))
		if !inBand {
			continue
		}
		if best == nil || b.Severity.Rank() > best.Severity.Rank() {
			best = b
		}
	}
	if best == nil {
		return "", 0, false
	}
	// The crossed edge is the one facing the nominal range: Max when the band
	// lies below nominal (a milder band starts at its Max, or a more severe
	// one ends at its Min), otherwise Min.
	threshold := best.Min
	for i := range bands {
		o := &bands[i]
		if (o.Severity.Rank() < best.Severity.Rank() && o.Min == best.Max) ||
			(o.Severity.Rank() > best.Severity.Rank() && o.Max == best.Min) {
			threshold = best.Max
		}
	}
	return best.Severity, threshold, true
}
