package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"dublin-rent/internal/cfg"
	"dublin-rent/internal/dataset"
	"dublin-rent/internal/forest"
	"dublin-rent/internal/pipeline"
	"dublin-rent/internal/predictor"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		shared       = flag.Bool("shared", false, "Query the shared-room model instead of whole properties")
		propertyType = flag.String("property-type", "Apartment", "Property type, e.g. Apartment, House, Studio")
		area         = flag.String("area", "dublin-1", "Dublin area token, e.g. dublin-7")
		beds         = flag.String("beds", "", "Number of bedrooms (whole-property queries)")
		baths        = flag.String("baths", "", "Number of bathrooms (whole-property queries)")
		roomType     = flag.String("room-type", "", "Room type for shared queries: single, double, twin, shared")
		showInfo     = flag.Bool("info", false, "Print model info instead of a prediction")
		logLevel     = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	p, err := loadPipeline(c, *shared)
	if err != nil {
		if errors.Is(err, predictor.ErrModelNotFound) {
			fmt.Fprintln(os.Stderr, "no trained model found; run renttrainer first")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("failed to load model artifacts")
	}

	if *showInfo {
		printJSON(p.Info())
		return
	}

	query := dataset.Query{
		PropertyType: *propertyType,
		Address:      *area,
		Bedrooms:     *beds,
		Bathrooms:    *baths,
		RoomType:     *roomType,
	}

	prediction, err := p.PredictQuery(query)
	if err != nil {
		if errors.Is(err, dataset.ErrValidation) {
			fmt.Fprintf(os.Stderr, "invalid query: %v\n", err)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("prediction failed")
	}

	printJSON(prediction)
}

// loadPipeline builds the requested variant's pipeline from persisted
// artifacts only. Unlike the trainer it never falls back to training.
func loadPipeline(c cfg.Settings, shared bool) (*pipeline.Pipeline, error) {
	variant := dataset.WholeProperty
	encoderPrefix := c.PropertyEncoderPrefix()
	dataPath := c.PropertyDataPath
	clampMin, clampMax := 500.0, 20000.0
	if shared {
		variant = dataset.SharedRoom
		encoderPrefix = c.SharedEncoderPrefix()
		dataPath = c.SharedDataPath
		clampMin, clampMax = 200.0, 15000.0
	}

	p := pipeline.New(pipeline.Config{
		Variant:       variant,
		DataPath:      dataPath,
		EncoderPrefix: encoderPrefix,
		Predictor: predictor.Config{
			ModelPath:   filepath.Join(c.ArtifactsDir, variant.Name+"_model.gob"),
			MetricsPath: filepath.Join(c.ArtifactsDir, variant.Name+"_metrics.json"),
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
	}, nil)

	if err := p.LoadOnly(); err != nil {
		return nil, err
	}
	return p, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("encode output")
	}
}
