package dataset

// Variant describes how one pipeline flavour composes its feature space.
// The two flavours share the whole load→clean→encode shape and differ only
// in required columns and feature composition, so a single Processor is
// parameterised by this config instead of subclassing per flavour.
type Variant struct {
	// Name tags artifacts and log lines ("property" or "shared").
	Name string
	// BedsBaths adds beds and baths as leading numeric features and makes
	// them required columns during cleaning.
	BedsBaths bool
	// RoomType adds a room-type one-hot group and makes room_type a
	// required column during cleaning and a required query field.
	RoomType bool
}

// WholeProperty is the pipeline for entire-property rentals: numeric beds
// and baths plus property-type and postal-area one-hot groups.
var WholeProperty = Variant{Name: "property", BedsBaths: true}

// SharedRoom is the pipeline for room shares: price is driven entirely by
// categorical structure (property type, postal area, room type).
var SharedRoom = Variant{Name: "shared", RoomType: true}
