package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dublin-rent/internal/cfg"
	"dublin-rent/internal/dataset"
	"dublin-rent/internal/forest"
	"dublin-rent/internal/metrics"
	"dublin-rent/internal/pipeline"
	"dublin-rent/internal/predictor"
	"dublin-rent/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Rent clamp ranges per variant.
const (
	propertyClampMin = 500
	propertyClampMax = 20000
	sharedClampMin   = 200
	sharedClampMax   = 15000
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	propertyData := resolveTrainingData(store, "property", c.PropertyDataPath, c.ArtifactsDir)
	sharedData := resolveTrainingData(store, "shared", c.SharedDataPath, c.ArtifactsDir)

	property := pipeline.NewService(
		pipelineConfig(c, dataset.WholeProperty, propertyData, c.PropertyEncoderPrefix(), propertyClampMin, propertyClampMax),
		m.ForVariant("property"),
	)
	shared := pipeline.NewService(
		pipelineConfig(c, dataset.SharedRoom, sharedData, c.SharedEncoderPrefix(), sharedClampMin, sharedClampMax),
		m.ForVariant("shared"),
	)

	startMetricsServer(ctx, c)

	// Both variants bootstrap independently, so run them in parallel.
	g, _ := errgroup.WithContext(ctx)
	g.Go(property.Start)
	g.Go(shared.Start)
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("pipeline bootstrap failed")
	}

	logModelSummary("property", property.Info())
	logModelSummary("shared", shared.Info())

	if c.MetricsPort == 0 {
		log.Info().Msg("training complete")
		return
	}

	// Keep serving /metrics; SIGHUP retrains both variants in place.
	waitForShutdown(ctx, cancel, property, shared)
}

// initializeStorage opens the listings warehouse when STORE_PATH is
// configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.StorePath == "" {
		return nil
	}
	store, err := storage.New(c.StorePath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without warehouse")
		return nil
	}
	return store
}

// resolveTrainingData routes training input through the warehouse when
// one is configured: the raw CSV is imported once, and training reads
// the warehouse export so every run sees the same merged snapshot.
func resolveTrainingData(store *storage.Store, variant, csvPath, artifactsDir string) string {
	if store == nil {
		return csvPath
	}

	count, err := store.CountListings(variant)
	if err != nil {
		log.Warn().Err(err).Str("variant", variant).Msg("warehouse unreadable, training from CSV")
		return csvPath
	}
	if count == 0 {
		imported, err := store.ImportCSV(variant, csvPath, "csv")
		if err != nil {
			log.Warn().Err(err).Str("variant", variant).Msg("warehouse import failed, training from CSV")
			return csvPath
		}
		log.Info().Int("rows", imported).Str("variant", variant).Msg("imported listings into warehouse")
	}

	exportPath := filepath.Join(artifactsDir, variant+"_warehouse.csv")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		log.Warn().Err(err).Msg("artifacts dir unavailable, training from CSV")
		return csvPath
	}
	exported, err := store.ExportCSV(variant, exportPath)
	if err != nil {
		log.Warn().Err(err).Str("variant", variant).Msg("warehouse export failed, training from CSV")
		return csvPath
	}
	log.Info().Int("rows", exported).Str("variant", variant).Msg("exported warehouse snapshot")
	return exportPath
}

func pipelineConfig(c cfg.Settings, v dataset.Variant, dataPath, encoderPrefix string, clampMin, clampMax float64) pipeline.Config {
	return pipeline.Config{
		Variant:       v,
		DataPath:      dataPath,
		EncoderPrefix: encoderPrefix,
		Predictor: predictor.Config{
			ModelPath:   filepath.Join(c.ArtifactsDir, v.Name+"_model.gob"),
			MetricsPath: filepath.Join(c.ArtifactsDir, v.Name+"_metrics.json"),
			ClampMin:    clampMin,
			ClampMax:    clampMax,
			Forest: forest.Config{
				Trees:           c.Trees,
				MaxDepth:        c.MaxDepth,
				MinSamplesSplit: c.MinSamplesSplit,
				MinSamplesLeaf:  c.MinSamplesLeaf,
				Seed:            int64(c.Seed),
			},
		},
	}
}

func logModelSummary(variant string, info pipeline.Info) {
	summary := info.DataSummary
	log.Info().
		Str("variant", variant).
		Int("records", summary.TotalRecords).
		Float64("median_price", summary.MedianPrice).
		Float64("mae", info.Metrics.MAE).
		Float64("rmse", info.Metrics.RMSE).
		Float64("r2", info.Metrics.R2).
		Msg("model ready")
}

// startMetricsServer starts the Prometheus metrics HTTP server when a
// port is configured.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	if c.MetricsPort == 0 {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until SIGINT/SIGTERM, retraining both variants
// on SIGHUP.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, property, shared *pipeline.Service) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				log.Info().Msg("SIGHUP received, retraining")
				g := new(errgroup.Group)
				g.Go(property.Retrain)
				g.Go(shared.Retrain)
				if err := g.Wait(); err != nil {
					log.Error().Err(err).Msg("retrain failed")
				}
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			cancel()
			return
		case <-ctx.Done():
			log.Info().Msg("context canceled")
			return
		}
	}
}
