// Package predictor owns one trained rental price model per pipeline
// variant: training with holdout evaluation, interval prediction from the
// spread of the ensemble, and artifact persistence.
package predictor

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"dublin-rent/internal/forest"
)

var (
	// ErrNotTrained is returned when prediction or saving is attempted on
	// an untrained model. Lifecycle error, not a data error.
	ErrNotTrained = errors.New("predictor: model not trained")
	// ErrModelNotFound is returned by Load when the model artifact is
	// absent. Callers are expected to fall back to retraining.
	ErrModelNotFound = errors.New("predictor: model artifact not found")
	// ErrFeatureMismatch is returned when a feature vector does not match
	// the width the model was trained on, e.g. encoders restored from a
	// different artifact generation than the model.
	ErrFeatureMismatch = errors.New("predictor: feature vector width does not match model")
)

// splitSeed fixes the 80/20 train/test shuffle so training runs are
// reproducible across invocations.
const splitSeed = 42

// Observer receives prediction and training counters. Implementations
// must be safe for concurrent use.
type Observer interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(seconds float64)
	TrainingDurationObserve(seconds float64)
	ModelAgeSet(seconds float64)
}

// Metrics holds the holdout evaluation of the last training run.
type Metrics struct {
	MAE             float64 `json:"mae"`
	MSE             float64 `json:"mse"`
	RMSE            float64 `json:"rmse"`
	R2              float64 `json:"r2"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
}

// Prediction is a point estimate with a 90% interval taken from the 5th
// and 95th percentiles of the per-tree predictions.
type Prediction struct {
	Prediction float64 `json:"prediction"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// FeatureWeight is one entry of the importance ranking.
type FeatureWeight struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Config describes one predictor instance.
type Config struct {
	// ModelPath holds the gob artifact (model + trained flag + feature
	// names); MetricsPath holds the evaluation JSON separately.
	ModelPath   string
	MetricsPath string
	// ClampMin/ClampMax bound every returned price for this variant.
	ClampMin float64
	ClampMax float64
	Forest   forest.Config
}

// Predictor wraps a single ensemble model and its persisted artifacts.
// State moves from untrained to trained via Train or a successful Load
// and never back; a trained predictor is immutable and safe for
// concurrent Predict calls.
type Predictor struct {
	cfg          Config
	model        *forest.Forest
	trained      bool
	featureNames []string
	metrics      Metrics
	obs          Observer
}

// modelArtifact is the on-disk gob layout of a trained model.
type modelArtifact struct {
	Model        *forest.Forest
	Trained      bool
	FeatureNames []string
}

// New returns an untrained predictor.
func New(cfg Config) *Predictor {
	return NewWithObserver(cfg, nil)
}

// NewWithObserver returns an untrained predictor reporting to obs.
func NewWithObserver(cfg Config, obs Observer) *Predictor {
	return &Predictor{cfg: cfg, obs: obs}
}

// Trained reports whether the model can predict.
func (p *Predictor) Trained() bool {
	return p.trained
}

// Train fits the ensemble on a seeded 80/20 split of (X, y) and records
// holdout metrics and the feature schema. Fitting problems are logged and
// returned; the caller decides whether to continue without this pipeline.
func (p *Predictor) Train(X [][]float64, y []float64, featureNames []string) error {
	start := time.Now()

	trainX, trainY, testX, testY := trainTestSplit(X, y, 0.8, splitSeed)

	model := forest.New(p.cfg.Forest)
	if err := model.Fit(trainX, trainY); err != nil {
		log.Error().Err(err).Str("model", p.cfg.ModelPath).Msg("model training failed")
		return fmt.Errorf("train: %w", err)
	}

	preds := make([]float64, len(testX))
	for i, row := range testX {
		preds[i] = model.Predict(row)
	}

	mse := meanSquaredError(testY, preds)
	p.metrics = Metrics{
		MAE:             meanAbsoluteError(testY, preds),
		MSE:             mse,
		RMSE:            math.Sqrt(mse),
		R2:              r2Score(testY, preds),
		TrainingSamples: len(trainX),
		TestSamples:     len(testX),
	}
	p.featureNames = append([]string(nil), featureNames...)
	p.model = model
	p.trained = true

	if p.obs != nil {
		p.obs.TrainingDurationObserve(time.Since(start).Seconds())
		p.obs.ModelAgeSet(0)
	}
	log.Info().
		Str("model", p.cfg.ModelPath).
		Float64("r2", p.metrics.R2).
		Float64("mae", p.metrics.MAE).
		Int("train_samples", p.metrics.TrainingSamples).
		Int("test_samples", p.metrics.TestSamples).
		Dur("took", time.Since(start)).
		Msg("model trained")

	return nil
}

// Predict returns the clamped point estimate and 90% interval for a single
// encoded feature vector. After clamping, a bound that crossed the point
// estimate is pulled back to it so the interval always brackets the
// estimate.
func (p *Predictor) Predict(features []float64) (Prediction, error) {
	if !p.trained {
		if p.obs != nil {
			p.obs.PredictionFailuresInc()
		}
		return Prediction{}, ErrNotTrained
	}
	if len(features) != p.model.NumFeatures {
		if p.obs != nil {
			p.obs.PredictionFailuresInc()
		}
		return Prediction{}, fmt.Errorf("%w: got %d columns, model expects %d",
			ErrFeatureMismatch, len(features), p.model.NumFeatures)
	}
	start := time.Now()

	perTree := p.model.PredictPerTree(features)
	point := clamp(mean(perTree), p.cfg.ClampMin, p.cfg.ClampMax)
	lower := clamp(percentile(perTree, 5), p.cfg.ClampMin, p.cfg.ClampMax)
	upper := clamp(percentile(perTree, 95), p.cfg.ClampMin, p.cfg.ClampMax)

	if lower > point {
		lower = point
	}
	if upper < point {
		upper = point
	}

	if p.obs != nil {
		p.obs.PredictionsInc()
		p.obs.PredictionLatencyObserve(time.Since(start).Seconds())
	}
	return Prediction{Prediction: point, LowerBound: lower, UpperBound: upper}, nil
}

// FeatureImportance returns the per-feature importance ranking, highest
// first. Positional names stand in when the stored name list does not
// match the model width. Nil for an untrained model.
func (p *Predictor) FeatureImportance() []FeatureWeight {
	if !p.trained {
		return nil
	}
	scores := p.model.FeatureImportances()

	out := make([]FeatureWeight, len(scores))
	useNames := len(p.featureNames) == len(scores)
	for i, s := range scores {
		name := fmt.Sprintf("feature_%d", i)
		if useNames {
			name = p.featureNames[i]
		}
		out[i] = FeatureWeight{Name: name, Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Metrics returns the holdout metrics of the last training run or load.
func (p *Predictor) Metrics() Metrics {
	return p.metrics
}

// FeatureNames returns a copy of the stored feature schema.
func (p *Predictor) FeatureNames() []string {
	return append([]string(nil), p.featureNames...)
}

// ModelExists reports whether a model artifact is present on disk. It
// checks presence only, not validity.
func (p *Predictor) ModelExists() bool {
	_, err := os.Stat(p.cfg.ModelPath)
	return err == nil
}

// Save writes the model artifact and the metrics file.
func (p *Predictor) Save() error {
	if !p.trained {
		return ErrNotTrained
	}
	if dir := filepath.Dir(p.cfg.ModelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	f, err := os.Create(p.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer f.Close()

	artifact := modelArtifact{Model: p.model, Trained: p.trained, FeatureNames: p.featureNames}
	if err := gob.NewEncoder(f).Encode(&artifact); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	data, err := json.MarshalIndent(p.metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(p.cfg.MetricsPath, data, 0o600); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	log.Info().Str("model", p.cfg.ModelPath).Msg("model saved")
	return nil
}

// Load restores the model artifact and, when present, the metrics file.
// A missing artifact returns ErrModelNotFound so callers can retrain.
func (p *Predictor) Load() error {
	info, err := os.Stat(p.cfg.ModelPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, p.cfg.ModelPath)
	} else if err != nil {
		return fmt.Errorf("stat model: %w", err)
	}

	f, err := os.Open(p.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	var artifact modelArtifact
	if err := gob.NewDecoder(f).Decode(&artifact); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}
	if artifact.Model == nil || !artifact.Model.Fitted() {
		return fmt.Errorf("decode model: artifact holds no fitted model")
	}
	p.model = artifact.Model
	p.trained = artifact.Trained
	p.featureNames = artifact.FeatureNames

	if data, err := os.ReadFile(p.cfg.MetricsPath); err == nil {
		if err := json.Unmarshal(data, &p.metrics); err != nil {
			return fmt.Errorf("parse metrics: %w", err)
		}
	}

	if p.obs != nil {
		p.obs.ModelAgeSet(time.Since(info.ModTime()).Seconds())
	}
	log.Info().Str("model", p.cfg.ModelPath).Msg("model loaded")
	return nil
}

// trainTestSplit shuffles the rows with a fixed seed and cuts them at
// ratio. The same seed is used for every invocation.
func trainTestSplit(X [][]float64, y []float64, ratio float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(y)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rnd := rand.New(rand.NewSource(seed))
	rnd.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nTrain := int(math.Floor(ratio * float64(n)))
	for i, j := range idx {
		if i < nTrain {
			trainX = append(trainX, X[j])
			trainY = append(trainY, y[j])
		} else {
			testX = append(testX, X[j])
			testY = append(testY, y[j])
		}
	}
	return trainX, trainY, testX, testY
}

func mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range a {
		s += v
	}
	return s / float64(len(a))
}

// percentile returns the q-th percentile with linear interpolation
// between closest ranks.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func meanAbsoluteError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	s := 0.0
	for i := range yTrue {
		s += math.Abs(yTrue[i] - yPred[i])
	}
	return s / float64(len(yTrue))
}

func meanSquaredError(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	s := 0.0
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

// r2Score follows the usual definition; a constant holdout target yields
// 0 rather than NaN so the metrics stay JSON-encodable.
func r2Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	m := mean(yTrue)
	var ssRes, ssTot float64
	for i := range yTrue {
		ssRes += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		ssTot += (yTrue[i] - m) * (yTrue[i] - m)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
