package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write test csv: %v", err)
	}
	return path
}

const propertyCSV = `price,beds,baths,prop_type,address
1500,2,1,Apartment,"12 Main St, Dublin 7"
2400,3,2,House,"D15 Blanchardstown"
1900,1,1,Studio,"Temple Bar D02"
N/A,2,1,Apartment,"Dublin 4"
900,1,1,Apartment,"Cork city centre"
100,1,1,Apartment,"Dublin 1"
"€1,200 per month",2,1,Apartment,"Dublin 8"
€400 per week,1,1,Studio,"Dublin 2"
1800,,1,House,"Dublin 6"
`

const sharedCSV = `price,beds,baths,prop_type,address,room_type
800,single,1,Apartment,"Dublin 7",single
950,double,,House,"D15",double
700,twin,1,Apartment,"Dublin 1",
650,,1,Studio,"Dublin 2",
1100,1,1,House,"Dublin 4",shared
`

func TestExtractDublinArea(t *testing.T) {
	cases := []struct {
		address string
		want    int
		ok      bool
	}{
		{"Dublin 7", 7, true},
		{"D7", 7, true},
		{"D07", 7, true},
		{"123 Foo St, Dublin 7", 7, true},
		{"dublin 15", 15, true},
		{"Blanchardstown, D15", 15, true},
		{"Cork", 0, false},
		{"", 0, false},
		{"Dublin 7 and also D2", 7, true}, // first pattern wins
	}
	for _, tc := range cases {
		got, ok := ExtractDublinArea(tc.address)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ExtractDublinArea(%q) = (%d, %v), want (%d, %v)", tc.address, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAreaFromToken(t *testing.T) {
	cases := []struct {
		token string
		want  int
	}{
		{"dublin-7", 7},
		{"dublin-15", 15},
		{"Dublin-2", 2},
		{"area 9", 9},
		{"no digits here", 1},
		{"", 1},
	}
	for _, tc := range cases {
		if got := AreaFromToken(tc.token); got != tc.want {
			t.Errorf("AreaFromToken(%q) = %d, want %d", tc.token, got, tc.want)
		}
	}
}

func TestNormalizePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1500", 1500, true},
		{"1500.50", 1500.50, true},
		{"N/A", 0, false},
		{"n/a", 0, false},
		{"", 0, false},
		{"€1,200 per month", 1200, true},
		{"€400 per week", 1600, true},
		{"€2,000", 2000, true},
		{"contact agent", 0, false},
	}
	for _, tc := range cases {
		got, ok := normalizePrice(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Errorf("normalizePrice(%q) = (%f, %v), want (%f, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestProcessor_LoadMissingFile(t *testing.T) {
	p := NewProcessor(WholeProperty)
	if err := p.Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProcessor_LoadMissingColumn(t *testing.T) {
	path := writeCSV(t, "bad.csv", "beds,baths\n1,1\n")
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err == nil {
		t.Error("expected error for missing price column")
	}
}

func TestProcessor_LoadSkipsMalformedRow(t *testing.T) {
	// A broken quote mid-file must not drop the rows after it.
	csvData := "price,beds,baths,prop_type,address\n" +
		"1500,2,1,Apartment,\"12 Main St, Dublin 7\"\n" +
		"1000,1,1,Apart\"ment,broken row\n" +
		"1800,3,2,House,\"Dublin 15\"\n" +
		"1200,1,1,Studio,\"Dublin 2\"\n"
	path := writeCSV(t, "ragged.csv", csvData)

	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := len(p.records); got != 3 {
		t.Fatalf("expected 3 cleaned records around the malformed row, got %d", got)
	}
	var sawLast bool
	for _, r := range p.records {
		if r.Price == 1200 && r.Area == 2 {
			sawLast = true
		}
	}
	if !sawLast {
		t.Error("row after the malformed one was lost")
	}
}

func TestProcessor_CleanProperty(t *testing.T) {
	path := writeCSV(t, "prop.csv", propertyCSV)
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Retained: rows 1-3 plus the two currency-string rows. Dropped: the
	// N/A price, the Cork address, the sub-200 price and the missing beds.
	if got := len(p.records); got != 5 {
		t.Fatalf("expected 5 cleaned records, got %d", got)
	}
	for _, r := range p.records {
		if r.Price < 200 || r.Price > 20000 {
			t.Errorf("record price %f outside plausible range", r.Price)
		}
		if r.Area == 0 || r.PropType == "" {
			t.Errorf("record missing essentials: %+v", r)
		}
	}

	// Weekly price is normalised to monthly.
	var weekly bool
	for _, r := range p.records {
		if r.Price == 1600 {
			weekly = true
		}
	}
	if !weekly {
		t.Error("expected the per-week listing to clean to 1600/month")
	}
}

func TestProcessor_CleanSharedDerivesRoomType(t *testing.T) {
	path := writeCSV(t, "shared.csv", sharedCSV)
	p := NewProcessor(SharedRoom)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Row 3 derives room type from the textual beds field; row 4 has no
	// room type at all and drops; row 5 has a numeric beds value so its
	// explicit room_type is used.
	if got := len(p.records); got != 4 {
		t.Fatalf("expected 4 cleaned records, got %d", got)
	}
	var derived bool
	for _, r := range p.records {
		if r.RoomType == "" {
			t.Errorf("retained record without room type: %+v", r)
		}
		if r.RoomType == "twin" {
			derived = true
		}
	}
	if !derived {
		t.Error("expected twin room type derived from beds text")
	}
}

func TestProcessor_PrepareBeforeLoad(t *testing.T) {
	p := NewProcessor(WholeProperty)
	if _, _, err := p.PrepareFeatures(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
}

func TestProcessor_EncodeBeforeFit(t *testing.T) {
	p := NewProcessor(WholeProperty)
	if _, err := p.EncodeInput(Query{PropertyType: "Apartment", Address: "dublin-7"}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}

func TestProcessor_SchemaConsistency(t *testing.T) {
	path := writeCSV(t, "prop.csv", propertyCSV)
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	X, y, err := p.PrepareFeatures()
	if err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}
	if len(X) != len(y) {
		t.Fatalf("matrix/target length mismatch: %d vs %d", len(X), len(y))
	}
	names := p.FeatureNames()
	if len(names) != len(X[0]) {
		t.Fatalf("feature names %d != matrix width %d", len(names), len(X[0]))
	}
	if names[0] != "beds" || names[1] != "baths" {
		t.Errorf("numeric features must lead the schema, got %v", names[:2])
	}

	// Encoding the raw fields of a training row reproduces that row.
	rec := p.records[0]
	vec, err := p.EncodeInput(Query{
		PropertyType: rec.PropType,
		Address:      fmt.Sprintf("dublin-%d", rec.Area),
		Bedrooms:     fmt.Sprintf("%g", rec.Beds),
		Bathrooms:    fmt.Sprintf("%g", rec.Baths),
	})
	if err != nil {
		t.Fatalf("EncodeInput failed: %v", err)
	}
	if len(vec) != len(X[0]) {
		t.Fatalf("encoded vector width %d != training width %d", len(vec), len(X[0]))
	}
	for i := range vec {
		if vec[i] != X[0][i] {
			t.Errorf("column %d (%s): encoded %f, training %f", i, names[i], vec[i], X[0][i])
		}
	}
}

func TestProcessor_UnknownCategoriesEncodeToZeros(t *testing.T) {
	path := writeCSV(t, "prop.csv", propertyCSV)
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}

	vec, err := p.EncodeInput(Query{
		PropertyType: "Castle",
		Address:      "dublin-99",
		Bedrooms:     "2",
		Bathrooms:    "1",
	})
	if err != nil {
		t.Fatalf("unknown categories must not fail encoding: %v", err)
	}
	// Everything past the two numeric columns is one-hot and must be zero.
	for i, v := range vec[2:] {
		if v != 0 {
			t.Errorf("one-hot column %d = %f, want 0 for unknown categories", i+2, v)
		}
	}
}

func TestProcessor_MissingNumericFieldsDefaultToOne(t *testing.T) {
	path := writeCSV(t, "prop.csv", propertyCSV)
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}

	vec, err := p.EncodeInput(Query{PropertyType: "Apartment", Address: "dublin-7"})
	if err != nil {
		t.Fatalf("EncodeInput failed: %v", err)
	}
	if vec[0] != 1 || vec[1] != 1 {
		t.Errorf("beds/baths should default to 1, got %f/%f", vec[0], vec[1])
	}
}

func TestProcessor_SharedRequiresRoomType(t *testing.T) {
	path := writeCSV(t, "shared.csv", sharedCSV)
	p := NewProcessor(SharedRoom)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}

	_, err := p.EncodeInput(Query{PropertyType: "Apartment", Address: "dublin-7"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for empty room_type, got %v", err)
	}
}

func TestProcessor_EncoderRoundTrip(t *testing.T) {
	path := writeCSV(t, "shared.csv", sharedCSV)
	p := NewProcessor(SharedRoom)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}

	query := Query{PropertyType: "Apartment", Address: "dublin-7", RoomType: "single"}
	before, err := p.EncodeInput(query)
	if err != nil {
		t.Fatalf("EncodeInput failed: %v", err)
	}

	prefix := filepath.Join(t.TempDir(), "artifacts", "shared_")
	if err := p.SaveEncoders(prefix); err != nil {
		t.Fatalf("SaveEncoders failed: %v", err)
	}

	restored := NewProcessor(SharedRoom)
	if err := restored.LoadEncoders(prefix); err != nil {
		t.Fatalf("LoadEncoders failed: %v", err)
	}

	after, err := restored.EncodeInput(query)
	if err != nil {
		t.Fatalf("EncodeInput after restore failed: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("vector width changed across restore: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("column %d changed across restore: %f vs %f", i, before[i], after[i])
		}
	}
	if a, b := p.FeatureNames(), restored.FeatureNames(); len(a) != len(b) {
		t.Fatalf("feature name count changed across restore")
	} else {
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("feature name %d changed: %q vs %q", i, a[i], b[i])
			}
		}
	}
}

func TestProcessor_ConcurrentEncodeAfterRestore(t *testing.T) {
	path := writeCSV(t, "property.csv", propertyCSV)
	p := NewProcessor(WholeProperty)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}
	prefix := filepath.Join(t.TempDir(), "artifacts", "property_")
	if err := p.SaveEncoders(prefix); err != nil {
		t.Fatalf("SaveEncoders failed: %v", err)
	}

	restored := NewProcessor(WholeProperty)
	if err := restored.LoadEncoders(prefix); err != nil {
		t.Fatalf("LoadEncoders failed: %v", err)
	}

	want, err := restored.EncodeInput(Query{PropertyType: "Apartment", Address: "dublin-7", Bedrooms: "2", Bathrooms: "1"})
	if err != nil {
		t.Fatalf("EncodeInput failed: %v", err)
	}

	// Encoding after a restore must be read-only so concurrent callers
	// need no locking; run under -race to catch any mutation.
	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([][]float64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			q := Query{PropertyType: "Apartment", Address: "dublin-7", Bedrooms: "2", Bathrooms: "1"}
			if w%2 == 1 {
				q.PropertyType = "House"
				q.Address = "dublin-15"
			}
			vec, err := restored.EncodeInput(q)
			if err != nil {
				t.Errorf("concurrent EncodeInput failed: %v", err)
				return
			}
			results[w] = vec
		}(w)
	}
	close(start)
	wg.Wait()

	for w := 0; w < workers; w += 2 {
		if len(results[w]) != len(want) {
			t.Fatalf("worker %d got width %d, want %d", w, len(results[w]), len(want))
		}
		for i := range want {
			if results[w][i] != want[i] {
				t.Errorf("worker %d column %d = %f, want %f", w, i, results[w][i], want[i])
			}
		}
	}
}

func TestProcessor_SaveEncodersBeforeFit(t *testing.T) {
	p := NewProcessor(WholeProperty)
	if err := p.SaveEncoders(filepath.Join(t.TempDir(), "p_")); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}

func TestProcessor_OptionLists(t *testing.T) {
	p := NewProcessor(WholeProperty)
	types := p.PropertyTypes()
	if len(types) != 3 || types[0] != "Apartment" {
		t.Errorf("expected default property types before fit, got %v", types)
	}
	if areas := p.DublinAreas(); len(areas) != 0 {
		t.Errorf("expected no areas before fit, got %v", areas)
	}

	path := writeCSV(t, "prop.csv", propertyCSV)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, _, err := p.PrepareFeatures(); err != nil {
		t.Fatalf("PrepareFeatures failed: %v", err)
	}

	areas := p.DublinAreas()
	if len(areas) == 0 {
		t.Fatal("expected fitted areas")
	}
	for i := 1; i < len(areas); i++ {
		if areas[i-1] >= areas[i] {
			t.Errorf("areas not sorted ascending: %v", areas)
		}
	}
}

func TestProcessor_DataSummary(t *testing.T) {
	p := NewProcessor(WholeProperty)
	empty := p.DataSummary()
	if empty.TotalRecords != 0 || empty.MedianPrice != 0 {
		t.Errorf("expected zeroed summary with no data, got %+v", empty)
	}
	if empty.PropertyTypes == nil || empty.DublinAreas == nil {
		t.Error("summary maps must be non-nil even when empty")
	}

	path := writeCSV(t, "prop.csv", propertyCSV)
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := p.DataSummary()
	if s.TotalRecords != 5 {
		t.Errorf("expected 5 records in summary, got %d", s.TotalRecords)
	}
	if s.MinPrice < 200 || s.MaxPrice > 20000 || s.MedianPrice < s.MinPrice || s.MedianPrice > s.MaxPrice {
		t.Errorf("implausible summary stats: %+v", s)
	}
	if s.PropertyTypes["Apartment"] == 0 {
		t.Errorf("expected apartment count in summary, got %v", s.PropertyTypes)
	}
}
