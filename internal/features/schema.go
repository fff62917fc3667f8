package features

// Kind is the type a field is coerced to before imputation
type Kind int

const (
	KindNumeric Kind = iota
	KindInteger
	KindCategorical
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindInteger:
		return "integer"
	case KindCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether values of this kind travel as floats
func (k Kind) IsNumeric() bool { return k != KindCategorical }

// Unknown is the sentinel for missing categorical values
const Unknown = "unknown"

// Epsilon guards the ratio denominators
const Epsilon = 1e-5

// Range is an inclusive clip range
type Range struct {
	Min float64
	Max float64
}

func (r *Range) apply(x float64) float64 {
	if r == nil {
		return x
	}
	return clip(x, r.Min, r.Max)
}

// Field describes one column of the feature vector
type Field struct {
	Name    string
	Kind    Kind
	Clip    *Range
	Derived bool
}

// Imputation returns the rule applied to nulls of this field
func (f Field) Imputation() string {
	switch {
	case f.Derived:
		return "derived"
	case f.Kind == KindCategorical:
		return "sentinel:" + Unknown
	default:
		return "batch_median"
	}
}

type derivation struct {
	name string
	fn   func(r required) float64
}

// required holds the imputed and clipped values the derived fields are computed from
type required map[string]float64

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var requiredFields = []Field{
	{Name: "driver_age", Kind: KindNumeric, Clip: &Range{18, 80}},
	{Name: "driver_experience", Kind: KindNumeric, Clip: &Range{0, 60}},
	{Name: "vehicle_age", Kind: KindNumeric, Clip: &Range{0, 30}},
	{Name: "vehicle_type", Kind: KindCategorical},
	{Name: "engine_power", Kind: KindNumeric, Clip: &Range{60, 300}},
	{Name: "vehicle_purpose", Kind: KindCategorical},
	{Name: "region", Kind: KindCategorical},
	{Name: "pct_days_with_snow", Kind: KindNumeric, Clip: &Range{0, 1}},
	{Name: "pct_days_with_rain", Kind: KindNumeric, Clip: &Range{0, 1}},
	{Name: "winter_duration_months", Kind: KindNumeric},
	{Name: "base_kbm", Kind: KindNumeric},
	{Name: "num_claims", Kind: KindInteger},
	{Name: "violation_count", Kind: KindInteger},
	{Name: "days_since_last_claim", Kind: KindNumeric, Clip: &Range{30, 1095}},
	{Name: "occupation_type", Kind: KindCategorical},
	{Name: "avg_trips_per_week", Kind: KindNumeric},
	{Name: "night_driving_ratio", Kind: KindNumeric, Clip: &Range{0, 1}},
	{Name: "ko_multiplier", Kind: KindNumeric},
	{Name: "num_owned_vehicles", Kind: KindInteger},
}

var derivations = []derivation{
	{"age_squared", func(r required) float64 {
		return r["driver_age"] * r["driver_age"]
	}},
	{"experience_ratio", func(r required) float64 {
		return r["driver_experience"] / (r["driver_age"] + Epsilon)
	}},
	{"claims_per_year", func(r required) float64 {
		return r["num_claims"] / (r["driver_experience"] + Epsilon)
	}},
	{"violations_per_year", func(r required) float64 {
		return r["violation_count"] / (r["driver_experience"] + Epsilon)
	}},
	{"claims_recent", func(r required) float64 {
		return flag(r["days_since_last_claim"] <= 365 && r["num_claims"] > 0)
	}},
	{"long_claim_free", func(r required) float64 {
		return flag(r["num_claims"] == 0 || r["days_since_last_claim"] >= 1095)
	}},
	{"experienced_clean", func(r required) float64 {
		return flag(r["driver_experience"] >= 10 && r["num_claims"] == 0 && r["violation_count"] == 0)
	}},
	{"young_with_violations", func(r required) float64 {
		return flag(r["driver_age"] < 25 && r["violation_count"] > 0)
	}},
	{"high_night_driving", func(r required) float64 {
		return flag(r["night_driving_ratio"] > 0.3)
	}},
	{"young_inexperienced", func(r required) float64 {
		return flag(r["driver_age"] < 25 && r["driver_experience"] < 3)
	}},
	{"night_trip_intensity", func(r required) float64 {
		return r["night_driving_ratio"] * r["avg_trips_per_week"]
	}},
	{"power_age_interaction", func(r required) float64 {
		return r["engine_power"] * r["vehicle_age"]
	}},
}

// Schema is the ordered list of required and derived fields a model is trained on
type Schema struct {
	fields      []Field
	index       map[string]int
	required    []Field
	derivations []derivation
}

var defaultSchema = newSchema(requiredFields, derivations)

// DefaultSchema returns the canonical feature schema
func DefaultSchema() *Schema {
	return defaultSchema
}

func newSchema(req []Field, der []derivation) *Schema {
	s := &Schema{
		fields:      make([]Field, 0, len(req)+len(der)),
		index:       make(map[string]int, len(req)+len(der)),
		required:    req,
		derivations: der,
	}
	for _, f := range req {
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	for _, d := range der {
		s.index[d.name] = len(s.fields)
		s.fields = append(s.fields, Field{Name: d.name, Kind: KindNumeric, Derived: true})
	}
	return s
}

// Fields returns a copy of all fields in output order
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Required returns the input fields in order
func (s *Schema) Required() []Field {
	return append([]Field(nil), s.required...)
}

// Names returns the output field names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of output fields
func (s *Schema) Len() int { return len(s.fields) }

// Index returns the position of name in the output vector
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Field returns the field at position i
func (s *Schema) Field(i int) Field { return s.fields[i] }
