package metrics

// VariantObserver binds the collectors to one pipeline variant's label and
// satisfies the observer interfaces of the dataset and predictor packages
// without those packages importing prometheus.
type VariantObserver struct {
	m       *Metrics
	variant string
}

// ForVariant returns an observer reporting under the given variant label.
func (m *Metrics) ForVariant(variant string) *VariantObserver {
	return &VariantObserver{m: m, variant: variant}
}

func (o *VariantObserver) RowsLoaded(n int) {
	o.m.RowsLoaded.WithLabelValues(o.variant).Add(float64(n))
}

func (o *VariantObserver) RowsRetained(n int) {
	o.m.RowsRetained.WithLabelValues(o.variant).Add(float64(n))
}

func (o *VariantObserver) EncodeFailureInc() {
	o.m.EncodeFailures.WithLabelValues(o.variant).Inc()
}

func (o *VariantObserver) PredictionsInc() {
	o.m.Predictions.WithLabelValues(o.variant).Inc()
}

func (o *VariantObserver) PredictionFailuresInc() {
	o.m.PredictionFailures.WithLabelValues(o.variant).Inc()
}

func (o *VariantObserver) PredictionLatencyObserve(seconds float64) {
	o.m.PredictionLatency.WithLabelValues(o.variant).Observe(seconds)
}

func (o *VariantObserver) TrainingDurationObserve(seconds float64) {
	o.m.TrainingDuration.WithLabelValues(o.variant).Observe(seconds)
}

func (o *VariantObserver) ModelAgeSet(seconds float64) {
	o.m.ModelAge.WithLabelValues(o.variant).Set(seconds)
}

func (o *VariantObserver) ModelR2Set(r2 float64) {
	o.m.ModelR2.WithLabelValues(o.variant).Set(r2)
}
