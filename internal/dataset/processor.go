// Package dataset turns raw scraped Dublin rental listings into the fixed
// numeric feature space the price models train and predict on. A single
// Processor serves both pipeline flavours, parameterised by a Variant.
//
// Fitted encoder state is immutable once PrepareFeatures or LoadEncoders
// has completed, so EncodeInput is safe to call from many goroutines
// concurrently against the same Processor.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Price bounds applied while cleaning; listings outside this range are
// treated as scraper noise.
const (
	minPlausiblePrice = 200
	maxPlausiblePrice = 20000
)

var (
	// ErrNotLoaded is returned when feature preparation runs before Load.
	ErrNotLoaded = errors.New("dataset: data not loaded")
	// ErrNotFitted is returned when input encoding runs before the
	// encoders were fitted or restored. This is a lifecycle error, not a
	// bad-input error.
	ErrNotFitted = errors.New("dataset: encoders not fitted")
	// ErrValidation marks problems with caller-supplied query fields, so
	// upstream layers can answer with a client error instead of a server
	// error.
	ErrValidation = errors.New("dataset: invalid input")
)

// Record is one cleaned listing. Every record has a numeric price inside
// the plausible range, a resolved postal area and a property type.
type Record struct {
	Price    float64
	Beds     float64
	Baths    float64
	PropType string
	Area     int
	RoomType string
}

// Query is a single structured prediction request before encoding.
// Bedrooms and Bathrooms arrive as strings from the caller and default to
// 1 when missing or unparseable.
type Query struct {
	PropertyType string
	Address      string
	Bedrooms     string
	Bathrooms    string
	RoomType     string
}

// Summary holds observability statistics over the cleaned dataset.
type Summary struct {
	TotalRecords  int            `json:"total_records"`
	MedianPrice   float64        `json:"median_price"`
	MinPrice      float64        `json:"min_price"`
	MaxPrice      float64        `json:"max_price"`
	PropertyTypes map[string]int `json:"property_types"`
	DublinAreas   map[int]int    `json:"dublin_areas"`
}

// Observer receives dataset counters. Implementations must be safe for
// concurrent use.
type Observer interface {
	RowsLoaded(n int)
	RowsRetained(n int)
	EncodeFailureInc()
}

// Processor loads, cleans and encodes listings for one pipeline variant.
type Processor struct {
	variant Variant
	obs     Observer

	records []Record
	loaded  bool

	propType     *OneHot
	area         *OneHot
	roomType     *OneHot
	featureNames []string
	fitted       bool
}

// NewProcessor returns a processor for the given variant.
func NewProcessor(v Variant) *Processor {
	return NewProcessorWithObserver(v, nil)
}

// NewProcessorWithObserver returns a processor reporting counters to obs.
func NewProcessorWithObserver(v Variant, obs Observer) *Processor {
	p := &Processor{
		variant:  v,
		obs:      obs,
		propType: NewOneHot(false),
		area:     NewOneHot(true),
	}
	if v.RoomType {
		p.roomType = NewOneHot(false)
	}
	return p
}

// Variant returns the variant this processor was built for.
func (p *Processor) Variant() Variant {
	return p.variant
}

type rawRow struct {
	price    string
	beds     string
	baths    string
	propType string
	address  string
	roomType string
}

// Load reads a delimited training file and cleans it in place. Parse and
// I/O failures come back as errors for the caller to log and route around;
// they never panic.
func (p *Processor) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open training data: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}
	for _, required := range []string{"price", "prop_type", "address"} {
		if _, ok := indices[required]; !ok {
			return fmt.Errorf("training data %s: missing column %q", path, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := indices[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var raws []rawRow
	skipped := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Scraped files carry the odd broken row; skip it and keep
			// reading rather than dropping the rest of the file.
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("read training data: %w", err)
		}
		raws = append(raws, rawRow{
			price:    field(rec, "price"),
			beds:     field(rec, "beds"),
			baths:    field(rec, "baths"),
			propType: strings.TrimSpace(field(rec, "prop_type")),
			address:  field(rec, "address"),
			roomType: strings.TrimSpace(field(rec, "room_type")),
		})
	}

	p.records = p.clean(raws)
	p.loaded = true

	if p.obs != nil {
		p.obs.RowsLoaded(len(raws))
		p.obs.RowsRetained(len(p.records))
	}
	log.Info().
		Str("variant", p.variant.Name).
		Str("file", path).
		Int("rows", len(raws)).
		Int("retained", len(p.records)).
		Int("skipped", skipped).
		Msg("training data loaded")

	return nil
}

// clean applies the variant's cleaning rules: price normalisation, numeric
// coercion, postal-area extraction, room-type derivation, essential-field
// drops and the plausible-price filter.
func (p *Processor) clean(raws []rawRow) []Record {
	out := make([]Record, 0, len(raws))
	for _, r := range raws {
		price, ok := normalizePrice(r.price)
		if !ok || price < minPlausiblePrice || price > maxPlausiblePrice {
			continue
		}
		if r.propType == "" {
			continue
		}
		area, ok := ExtractDublinArea(r.address)
		if !ok {
			continue
		}

		rec := Record{Price: price, PropType: r.propType, Area: area}

		if p.variant.BedsBaths {
			beds, err1 := strconv.ParseFloat(strings.TrimSpace(r.beds), 64)
			baths, err2 := strconv.ParseFloat(strings.TrimSpace(r.baths), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			rec.Beds, rec.Baths = beds, baths
		}

		if p.variant.RoomType {
			rt := r.roomType
			if rt == "" {
				rt = roomTypeFromBeds(r.beds)
			}
			if rt == "" {
				continue
			}
			rec.RoomType = rt
		}

		out = append(out, rec)
	}
	return out
}

// PrepareFeatures fits the categorical encoders on the cleaned dataset and
// assembles the training matrix and price target. The resulting column
// order is numeric features, then the property-type one-hot group, then
// postal areas, then room types for the shared variant; EncodeInput
// reproduces exactly this order.
func (p *Processor) PrepareFeatures() ([][]float64, []float64, error) {
	if !p.loaded {
		return nil, nil, ErrNotLoaded
	}

	propVals := make([]string, len(p.records))
	areaVals := make([]string, len(p.records))
	roomVals := make([]string, 0)
	for i, r := range p.records {
		propVals[i] = r.PropType
		areaVals[i] = strconv.Itoa(r.Area)
		if p.variant.RoomType {
			roomVals = append(roomVals, r.RoomType)
		}
	}

	p.propType.Fit(propVals)
	p.area.Fit(areaVals)
	if p.variant.RoomType {
		p.roomType.Fit(roomVals)
	}
	p.featureNames = p.buildFeatureNames()
	p.fitted = true

	X := make([][]float64, len(p.records))
	y := make([]float64, len(p.records))
	for i, r := range p.records {
		X[i] = p.assemble(r.Beds, r.Baths, r.PropType, r.Area, r.RoomType)
		y[i] = r.Price
	}

	log.Info().
		Str("variant", p.variant.Name).
		Int("rows", len(X)).
		Int("features", len(p.featureNames)).
		Msg("features prepared")

	return X, y, nil
}

// EncodeInput turns one query into a feature vector laid out identically
// to a PrepareFeatures row. Unknown property types or areas encode as
// all-zero one-hot groups rather than failing.
func (p *Processor) EncodeInput(q Query) ([]float64, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	if p.variant.RoomType && strings.TrimSpace(q.RoomType) == "" {
		if p.obs != nil {
			p.obs.EncodeFailureInc()
		}
		return nil, fmt.Errorf("%w: room_type is required for shared-room predictions", ErrValidation)
	}

	beds := parseNumericOr(q.Bedrooms, 1)
	baths := parseNumericOr(q.Bathrooms, 1)
	area := AreaFromToken(q.Address)

	return p.assemble(beds, baths, q.PropertyType, area, strings.TrimSpace(q.RoomType)), nil
}

// assemble is the single place the feature column order is defined.
func (p *Processor) assemble(beds, baths float64, propType string, area int, roomType string) []float64 {
	vec := make([]float64, 0, len(p.featureNames))
	if p.variant.BedsBaths {
		vec = append(vec, beds, baths)
	}
	vec = append(vec, p.propType.Transform(propType)...)
	vec = append(vec, p.area.Transform(strconv.Itoa(area))...)
	if p.variant.RoomType {
		vec = append(vec, p.roomType.Transform(roomType)...)
	}
	return vec
}

func (p *Processor) buildFeatureNames() []string {
	names := make([]string, 0)
	if p.variant.BedsBaths {
		names = append(names, "beds", "baths")
	}
	for _, c := range p.propType.Categories {
		names = append(names, "prop_type_"+c)
	}
	for _, c := range p.area.Categories {
		names = append(names, "dublin_area_"+c)
	}
	if p.variant.RoomType {
		for _, c := range p.roomType.Categories {
			names = append(names, "room_type_"+c)
		}
	}
	return names
}

// FeatureNames returns a copy of the ordered feature names recorded by the
// last fit or encoder load.
func (p *Processor) FeatureNames() []string {
	out := make([]string, len(p.featureNames))
	copy(out, p.featureNames)
	return out
}

// PropertyTypes lists the fitted property-type categories, with sensible
// defaults before any fit so clients can still render option lists.
func (p *Processor) PropertyTypes() []string {
	if p.propType.Fitted() {
		out := make([]string, len(p.propType.Categories))
		copy(out, p.propType.Categories)
		return out
	}
	return []string{"Apartment", "House", "Studio"}
}

// DublinAreas lists the fitted postal districts in ascending order. Empty
// before fitting.
func (p *Processor) DublinAreas() []int {
	out := make([]int, 0, len(p.area.Categories))
	for _, c := range p.area.Categories {
		if n, err := strconv.Atoi(c); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// DataSummary reports record count, price spread and category frequencies.
// It never fails: with no data loaded it returns a zeroed summary.
func (p *Processor) DataSummary() Summary {
	s := Summary{
		PropertyTypes: make(map[string]int),
		DublinAreas:   make(map[int]int),
	}
	if len(p.records) == 0 {
		return s
	}

	prices := make([]float64, len(p.records))
	for i, r := range p.records {
		prices[i] = r.Price
		s.PropertyTypes[r.PropType]++
		s.DublinAreas[r.Area]++
	}
	sort.Float64s(prices)

	s.TotalRecords = len(p.records)
	s.MinPrice = prices[0]
	s.MaxPrice = prices[len(prices)-1]
	s.MedianPrice = median(prices)
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func parseNumericOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

// encoderFiles maps persisted encoder names to their targets for one
// processor. Room-type is present only on the shared variant.
func (p *Processor) encoderFiles() map[string]*OneHot {
	files := map[string]*OneHot{
		"prop_type_encoder.json":   p.propType,
		"dublin_area_encoder.json": p.area,
	}
	if p.variant.RoomType {
		files["room_type_encoder.json"] = p.roomType
	}
	return files
}

// SaveEncoders persists every fitted encoder and the feature-name list
// under the given path prefix.
func (p *Processor) SaveEncoders(prefix string) error {
	if !p.fitted {
		return ErrNotFitted
	}
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create encoder dir: %w", err)
		}
	}

	for name, enc := range p.encoderFiles() {
		data, err := json.MarshalIndent(enc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		if err := os.WriteFile(prefix+name, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	names, err := json.Marshal(p.featureNames)
	if err != nil {
		return fmt.Errorf("marshal feature names: %w", err)
	}
	if err := os.WriteFile(prefix+"feature_names.json", names, 0o600); err != nil {
		return fmt.Errorf("write feature names: %w", err)
	}

	log.Info().Str("variant", p.variant.Name).Str("prefix", prefix).Msg("encoders saved")
	return nil
}

// LoadEncoders restores previously fitted encoders so EncodeInput
// reproduces the exact training-time feature layout without retraining.
func (p *Processor) LoadEncoders(prefix string) error {
	for name, enc := range p.encoderFiles() {
		data, err := os.ReadFile(prefix + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := json.Unmarshal(data, enc); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		// Restore the lookup index now so encoding stays read-only and
		// concurrent EncodeInput calls never mutate shared state.
		enc.rebuildIndex()
	}

	// The feature-name file is authoritative when present; otherwise the
	// list is rebuilt from the restored encoders, which yields the same
	// order by construction.
	if data, err := os.ReadFile(prefix + "feature_names.json"); err == nil {
		if err := json.Unmarshal(data, &p.featureNames); err != nil {
			return fmt.Errorf("parse feature names: %w", err)
		}
	} else {
		p.featureNames = p.buildFeatureNames()
	}
	p.fitted = true

	log.Info().Str("variant", p.variant.Name).Str("prefix", prefix).Msg("encoders loaded")
	return nil
}
