package pipeline

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"dublin-rent/internal/dataset"
	"dublin-rent/internal/predictor"
)

// Service serves predictions from the current pipeline and supports
// retraining without blocking readers. A retrain builds a complete
// replacement pipeline off to the side and swaps it in atomically only
// after it trained successfully, so in-flight queries keep using the
// old model.
type Service struct {
	cfg     Config
	obs     Observer
	current atomic.Pointer[Pipeline]
}

// NewService builds a service around an initial pipeline for cfg. Call
// Start before serving.
func NewService(cfg Config, obs Observer) *Service {
	s := &Service{cfg: cfg, obs: obs}
	s.current.Store(New(cfg, obs))
	return s
}

// Start bootstraps the initial pipeline (load artifacts or train).
func (s *Service) Start() error {
	return s.current.Load().Bootstrap()
}

// Retrain trains a fresh pipeline from the configured CSV and swaps it
// in. On failure the previous pipeline keeps serving.
func (s *Service) Retrain() error {
	next := New(s.cfg, s.obs)
	if err := next.Train(); err != nil {
		log.Error().Err(err).
			Str("variant", s.cfg.Variant.Name).
			Msg("retrain failed, keeping current model")
		return err
	}
	s.current.Store(next)
	log.Info().
		Str("variant", s.cfg.Variant.Name).
		Float64("r2", next.Metrics().R2).
		Msg("retrained model swapped in")
	return nil
}

// PredictQuery scores a query against the current model.
func (s *Service) PredictQuery(q dataset.Query) (predictor.Prediction, error) {
	return s.current.Load().PredictQuery(q)
}

// Info returns the current pipeline's introspection snapshot.
func (s *Service) Info() Info {
	return s.current.Load().Info()
}

// Trained reports whether the current pipeline can predict.
func (s *Service) Trained() bool {
	return s.current.Load().Trained()
}
