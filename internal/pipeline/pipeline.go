// Package pipeline wires one dataset processor to one predictor and
// handles the train-or-load lifecycle of a pricing variant.
package pipeline

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"dublin-rent/internal/dataset"
	"dublin-rent/internal/predictor"
)

// Observer aggregates the counters both pipeline stages report, plus
// the model quality gauge. *metrics.VariantObserver satisfies it.
type Observer interface {
	dataset.Observer
	predictor.Observer
	ModelR2Set(r2 float64)
}

// Config describes one variant's pipeline end to end.
type Config struct {
	Variant       dataset.Variant
	DataPath      string
	EncoderPrefix string
	Predictor     predictor.Config
}

// Info is the introspection snapshot served for a trained variant.
type Info struct {
	Variant           string                    `json:"variant"`
	Trained           bool                      `json:"trained"`
	Metrics           predictor.Metrics         `json:"metrics"`
	FeatureImportance []predictor.FeatureWeight `json:"feature_importance,omitempty"`
	DataSummary       dataset.Summary           `json:"data_summary"`
	PropertyTypes     []string                  `json:"property_types"`
	DublinAreas       []int                     `json:"dublin_areas"`
}

// Pipeline couples the feature encoders and the model for one variant.
// Once trained or loaded it is immutable; concurrent PredictQuery calls
// need no locking.
type Pipeline struct {
	cfg  Config
	proc *dataset.Processor
	pred *predictor.Predictor
	obs  Observer
}

// New builds an untrained pipeline for cfg.
func New(cfg Config, obs Observer) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		obs: obs,
	}
	if obs != nil {
		p.proc = dataset.NewProcessorWithObserver(cfg.Variant, obs)
		p.pred = predictor.NewWithObserver(cfg.Predictor, obs)
	} else {
		p.proc = dataset.NewProcessor(cfg.Variant)
		p.pred = predictor.New(cfg.Predictor)
	}
	return p
}

// Bootstrap makes the pipeline ready to serve: it loads a persisted
// model and its encoders when both exist, and trains from the CSV
// otherwise. A corrupt or partial artifact set falls back to training.
func (p *Pipeline) Bootstrap() error {
	if p.pred.ModelExists() {
		if err := p.loadArtifacts(); err == nil {
			log.Info().
				Str("variant", p.cfg.Variant.Name).
				Str("model", p.cfg.Predictor.ModelPath).
				Float64("r2", p.pred.Metrics().R2).
				Msg("loaded persisted model")
			p.reportQuality()
			return nil
		} else {
			log.Warn().Err(err).
				Str("variant", p.cfg.Variant.Name).
				Msg("persisted model unusable, retraining")
		}
	}
	return p.Train()
}

// LoadOnly restores the pipeline strictly from persisted artifacts.
// It never trains; a missing model surfaces as
// predictor.ErrModelNotFound.
func (p *Pipeline) LoadOnly() error {
	return p.loadArtifacts()
}

func (p *Pipeline) loadArtifacts() error {
	if err := p.pred.Load(); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if err := p.proc.LoadEncoders(p.cfg.EncoderPrefix); err != nil {
		return fmt.Errorf("load encoders: %w", err)
	}
	return nil
}

// Train runs the full cycle: load and clean the CSV, fit encoders,
// fit the ensemble, persist model and encoders.
func (p *Pipeline) Train() error {
	if err := p.proc.Load(p.cfg.DataPath); err != nil {
		return fmt.Errorf("load training data: %w", err)
	}

	X, y, err := p.proc.PrepareFeatures()
	if err != nil {
		return fmt.Errorf("prepare features: %w", err)
	}

	if err := p.pred.Train(X, y, p.proc.FeatureNames()); err != nil {
		return fmt.Errorf("train model: %w", err)
	}

	if err := p.pred.Save(); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := p.proc.SaveEncoders(p.cfg.EncoderPrefix); err != nil {
		return fmt.Errorf("save encoders: %w", err)
	}

	p.reportQuality()
	return nil
}

func (p *Pipeline) reportQuality() {
	if p.obs != nil {
		p.obs.ModelR2Set(p.pred.Metrics().R2)
	}
}

// PredictQuery encodes a raw query and scores it.
func (p *Pipeline) PredictQuery(q dataset.Query) (predictor.Prediction, error) {
	features, err := p.proc.EncodeInput(q)
	if err != nil {
		if p.obs != nil {
			p.obs.PredictionFailuresInc()
		}
		return predictor.Prediction{}, err
	}
	return p.pred.Predict(features)
}

// Trained reports whether the pipeline can serve predictions.
func (p *Pipeline) Trained() bool {
	return p.pred.Trained()
}

// Metrics returns the holdout evaluation of the current model.
func (p *Pipeline) Metrics() predictor.Metrics {
	return p.pred.Metrics()
}

// Info returns the introspection snapshot for this variant.
func (p *Pipeline) Info() Info {
	return Info{
		Variant:           p.cfg.Variant.Name,
		Trained:           p.pred.Trained(),
		Metrics:           p.pred.Metrics(),
		FeatureImportance: p.pred.FeatureImportance(),
		DataSummary:       p.proc.DataSummary(),
		PropertyTypes:     p.proc.PropertyTypes(),
		DublinAreas:       p.proc.DublinAreas(),
	}
}
