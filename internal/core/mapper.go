package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Source columns of the taxonomy CSV.
const (
	ColumnBodyType       = "BodyType"
	ColumnMake           = "Make"
	ColumnGenModel       = "GenModel"
	ColumnModel          = "Model"
	ColumnFuel           = "Fuel"
	ColumnEngineSize     = "EngineSizeSimple"
	ColumnEngineSizeDesc = "EngineSizeDesc"
)

// RequiredColumns must all appear in the header of an import file.
// EngineSizeDesc is informational and may be absent.
var RequiredColumns = []string{
	ColumnBodyType,
	ColumnMake,
	ColumnGenModel,
	ColumnModel,
	ColumnFuel,
	ColumnEngineSize,
}

// Skip reasons. Consumers match on these strings, so they must not change.
const (
	SkipInvalidBodyType = "Invalid body type"
	SkipModelEmpty      = "Model is empty"
)

// TaxonomyCsvRow is a CSV record normalised into the three hierarchy levels.
type TaxonomyCsvRow struct {
	RowNumber int

	MakeID      string
	MakeName    string
	ModelID     string
	ModelName   string
	VariantID   string
	VariantName string

	FuelCategory   FuelCategory
	EngineSizeInCC *int

	// engineSizeText is the raw EngineSizeSimple value when it could not be
	// read as a number.
	engineSizeText string
}

// RowMapper turns raw records into typed rows, applying the business
// filters that exclude a row before validation.
type RowMapper struct {
	policy Policy
}

// NewRowMapper creates a mapper for policy.
func NewRowMapper(policy Policy) *RowMapper {
	return &RowMapper{policy: policy}
}

// Map converts rec. A non-empty skip reason means the row is excluded by a
// business rule and the returned row must not be used.
//
// The make name comes from Make and the model name from GenModel. The
// variant name joins Model, the engine size in litres and the fuel text,
// e.g. "124 GT MULTIAIR 1.4l Petrol".
func (m *RowMapper) Map(rec Record) (TaxonomyCsvRow, string) {
	if rec.Get(ColumnBodyType) != m.policy.AcceptedBodyType {
		return TaxonomyCsvRow{}, SkipInvalidBodyType
	}

	modelName := rec.Get(ColumnGenModel)
	if modelName == "" {
		return TaxonomyCsvRow{}, SkipModelEmpty
	}

	row := TaxonomyCsvRow{
		RowNumber:    rec.RowNumber,
		MakeName:     rec.Get(ColumnMake),
		ModelName:    modelName,
		FuelCategory: ParseFuelCategory(rec.Get(ColumnFuel)),
	}
	row.EngineSizeInCC, row.engineSizeText = parseEngineSize(rec.Get(ColumnEngineSize))
	row.VariantName = variantName(rec.Get(ColumnModel), row.EngineSizeInCC, rec.Get(ColumnFuel))

	row.MakeID = FormatID(row.MakeName)
	row.ModelID = FormatID(row.ModelName)
	row.VariantID = FormatID(row.VariantName)

	return row, ""
}

// parseEngineSize reads a cc value. Blank and zero mean "no engine size";
// text that is not a number is returned so the validator can report it.
// Values beyond the int range saturate at math.MaxInt or math.MinInt so the
// range rules reject them.
func parseEngineSize(s string) (*int, string) {
	if s == "" {
		return nil, ""
	}
	n, err := strconv.Atoi(s)
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(s, "-") {
			n = math.MinInt
		} else {
			n = math.MaxInt
		}
		return &n, ""
	}
	if err == nil {
		if n == 0 {
			return nil, ""
		}
		return &n, ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(f) {
		return nil, s
	}
	switch {
	case f >= float64(math.MaxInt):
		n = math.MaxInt
	case f <= float64(math.MinInt):
		n = math.MinInt
	default:
		n = int(math.Round(f))
	}
	if n == 0 {
		return nil, ""
	}
	return &n, ""
}

func variantName(model string, engineCC *int, fuel string) string {
	parts := make([]string, 0, 3)
	if model != "" {
		parts = append(parts, model)
	}
	if engineCC != nil && *engineCC > 0 {
		litres := math.Round(float64(*engineCC)/100) / 10
		parts = append(parts, strconv.FormatFloat(litres, 'f', 1, 64)+"l")
	}
	if fuel != "" {
		parts = append(parts, fuel)
	}
	return strings.Join(parts, " ")
}
