package core

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readRow parses a single data line under the taxonomy header.
func readRow(t *testing.T, line string) Record {
	t.Helper()
	r, err := NewCSVReader(strings.NewReader(taxonomyHeader+line+"\n"), RequiredColumns...)
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)
	return rec
}

func TestRowMapper_Map(t *testing.T) {
	m := NewRowMapper(DefaultPolicy())

	row, skip := m.Map(readRow(t, abarthRow))
	require.Empty(t, skip)

	assert.Equal(t, 1, row.RowNumber)
	assert.Equal(t, "abarth", row.MakeID)
	assert.Equal(t, "ABARTH", row.MakeName)
	assert.Equal(t, "abarth-124", row.ModelID)
	assert.Equal(t, "ABARTH 124", row.ModelName)
	assert.Equal(t, "124-gt-multiair-1-4l-petrol", row.VariantID)
	assert.Equal(t, "124 GT MULTIAIR 1.4l Petrol", row.VariantName)
	assert.Equal(t, FuelPetrol, row.FuelCategory)
	require.NotNil(t, row.EngineSizeInCC)
	assert.Equal(t, 1400, *row.EngineSizeInCC)
}

func TestRowMapper_Skips(t *testing.T) {
	m := NewRowMapper(DefaultPolicy())

	_, skip := m.Map(readRow(t, "Vans,FORD,TRANSIT,CUSTOM,Diesel,2000,"))
	assert.Equal(t, SkipInvalidBodyType, skip)

	_, skip = m.Map(readRow(t, "cars,FORD,FOCUS,ST,Petrol,2000,"))
	assert.Equal(t, SkipInvalidBodyType, skip, "body type match is exact")

	_, skip = m.Map(readRow(t, "Cars,FORD,  ,ST,Petrol,2000,"))
	assert.Equal(t, SkipModelEmpty, skip)

	vans := DefaultPolicy()
	vans.AcceptedBodyType = "Vans"
	_, skip = NewRowMapper(vans).Map(readRow(t, "Vans,FORD,TRANSIT,CUSTOM,Diesel,2000,"))
	assert.Empty(t, skip)
}

func TestRowMapper_EngineSize(t *testing.T) {
	m := NewRowMapper(DefaultPolicy())

	tests := []struct {
		engine      string
		wantCC      *int
		wantText    string
		wantVariant string
	}{
		{"1998", intPtr(1998), "", "ST 2.0l Petrol"},
		{"999", intPtr(999), "", "ST 1.0l Petrol"},
		{"1368.4", intPtr(1368), "", "ST 1.4l Petrol"},
		{"0", nil, "", "ST Petrol"},
		{"", nil, "", "ST Petrol"},
		{"1.6 litre", nil, "1.6 litre", "ST Petrol"},
		{"-5", intPtr(-5), "", "ST Petrol"},
		{"99999999999999999999", intPtr(math.MaxInt), "", ""},
		{"-99999999999999999999", intPtr(math.MinInt), "", "ST Petrol"},
		{"1e30", intPtr(math.MaxInt), "", ""},
		{"-1e30", intPtr(math.MinInt), "", "ST Petrol"},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			row, skip := m.Map(readRow(t, "Cars,FORD,FOCUS,ST,Petrol,"+tt.engine+","))
			require.Empty(t, skip)
			assert.Equal(t, tt.wantCC, row.EngineSizeInCC)
			assert.Equal(t, tt.wantText, row.engineSizeText)
			if tt.wantVariant != "" {
				assert.Equal(t, tt.wantVariant, row.VariantName)
			}
		})
	}
}

func TestParseFuelCategory(t *testing.T) {
	assert.Equal(t, FuelPetrol, ParseFuelCategory("petrol"))
	assert.Equal(t, FuelElectricHybridDiesel, ParseFuelCategory(" ElectricHybridDiesel "))
	assert.Equal(t, FuelOther, ParseFuelCategory("Diesel"))
	assert.Equal(t, FuelOther, ParseFuelCategory(""))
}

func intPtr(n int) *int { return &n }
