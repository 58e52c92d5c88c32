// Package filter implements the adaptive low-pass ("one euro") filter used to
// stabilise raw gaze coordinates before they drive the pointer.
//
// The cutoff frequency rises with the estimated speed of the signal, so slow
// fixations are smoothed aggressively while saccades are followed closely.
// Filters are single-owner: the daemon loop is the only caller.
package filter

import "math"

// Default parameters used when no preset or custom values are configured.
const (
	DefaultFrequencyHz      = 30.0
	DefaultMinCutoff        = 1.0
	DefaultBeta             = 0.007
	DefaultDerivativeCutoff = 1.0
)

// Params configures a OneEuro filter.
type Params struct {
	// FrequencyHz is the nominal sample rate, used only for the first update
	// before real timestamp deltas are available.
	FrequencyHz float64 `json:"freq" toml:"freq"`

	// MinCutoff is the baseline cutoff (Hz). Lower values smooth more.
	MinCutoff float64 `json:"min_cutoff" toml:"min_cutoff"`

	// Beta scales how much the cutoff rises with speed.
	Beta float64 `json:"beta" toml:"beta"`

	// DerivativeCutoff smooths the speed estimate.
	DerivativeCutoff float64 `json:"d_cutoff" toml:"d_cutoff"`
}

// DefaultParams returns the stock filter parameters.
func DefaultParams() Params {
	return Params{
		FrequencyHz:      DefaultFrequencyHz,
		MinCutoff:        DefaultMinCutoff,
		Beta:             DefaultBeta,
		DerivativeCutoff: DefaultDerivativeCutoff,
	}
}

// sanitized replaces non-positive or non-finite values with defaults so the
// filter math can never divide by zero.
func (p Params) sanitized() Params {
	if !(p.FrequencyHz > 0) || math.IsInf(p.FrequencyHz, 0) {
		p.FrequencyHz = DefaultFrequencyHz
	}
	if !(p.MinCutoff > 0) || math.IsInf(p.MinCutoff, 0) {
		p.MinCutoff = DefaultMinCutoff
	}
	if !(p.Beta >= 0) || math.IsInf(p.Beta, 0) {
		p.Beta = 0
	}
	if !(p.DerivativeCutoff > 0) || math.IsInf(p.DerivativeCutoff, 0) {
		p.DerivativeCutoff = DefaultDerivativeCutoff
	}
	return p
}

// lowPass is a one-pole exponential smoother.
type lowPass struct {
	last        float64
	initialized bool
}

func (lp *lowPass) apply(v, alpha float64) float64 {
	if !lp.initialized {
		lp.last = v
		lp.initialized = true
		return v
	}
	if v == lp.last {
		return v
	}
	lp.last = alpha*v + (1-alpha)*lp.last
	return lp.last
}

// smoothingFactor returns the exponential smoothing factor for a cutoff at the
// given sample rate: 1 / (1 + tau*rate) with tau = 1/(2*pi*cutoff).
func smoothingFactor(rateHz, cutoffHz float64) float64 {
	tau := 1.0 / (2 * math.Pi * cutoffHz)
	return 1.0 / (1.0 + tau*rateHz)
}

// OneEuro filters a single axis.
type OneEuro struct {
	params Params

	value lowPass
	deriv lowPass

	lastRaw  float64
	lastTsMs int64
	seen     bool
}

// New returns a OneEuro filter with the given parameters.
func New(p Params) *OneEuro {
	return &OneEuro{params: p.sanitized()}
}

// Configure replaces the parameters and resets the filter state.
func (f *OneEuro) Configure(p Params) {
	f.params = p.sanitized()
	f.Reset()
}

// Params returns the effective (sanitized) parameters.
func (f *OneEuro) Params() Params { return f.params }

// Reset returns the filter to its uninitialized state.
func (f *OneEuro) Reset() {
	f.value = lowPass{}
	f.deriv = lowPass{}
	f.lastRaw = 0
	f.lastTsMs = 0
	f.seen = false
}

// Filter feeds one raw sample taken at tsMs and returns the filtered value.
//
// The first sample is returned unchanged. A sample whose timestamp does not
// advance past the previous one leaves the state untouched and returns the
// previous filtered value.
func (f *OneEuro) Filter(tsMs int64, raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		if f.seen {
			return f.value.last
		}
		return 0
	}

	if !f.seen {
		f.seen = true
		f.lastRaw = raw
		f.lastTsMs = tsMs
		f.deriv.apply(0, 1)
		return f.value.apply(raw, 1)
	}

	dtMs := tsMs - f.lastTsMs
	if dtMs <= 0 {
		return f.value.last
	}
	rate := 1000.0 / float64(dtMs)

	dx := (raw - f.lastRaw) * rate
	edx := f.deriv.apply(dx, smoothingFactor(rate, f.params.DerivativeCutoff))
	cutoff := f.params.MinCutoff + f.params.Beta*math.Abs(edx)

	out := f.value.apply(raw, smoothingFactor(rate, cutoff))

	f.lastRaw = raw
	f.lastTsMs = tsMs
	return out
}

// Filter2D filters x and y independently.
type Filter2D struct {
	x *OneEuro
	y *OneEuro
}

// New2D returns a two-axis filter sharing the same parameters.
func New2D(p Params) *Filter2D {
	return &Filter2D{x: New(p), y: New(p)}
}

// Configure re-parameterizes both axes and resets them.
func (f *Filter2D) Configure(p Params) {
	f.x.Configure(p)
	f.y.Configure(p)
}

// Params returns the effective parameters (identical on both axes).
func (f *Filter2D) Params() Params { return f.x.Params() }

// Reset clears both axes.
func (f *Filter2D) Reset() {
	f.x.Reset()
	f.y.Reset()
}

// Filter smooths one (x, y) sample.
func (f *Filter2D) Filter(tsMs int64, x, y float64) (float64, float64) {
	return f.x.Filter(tsMs, x), f.y.Filter(tsMs, y)
}
