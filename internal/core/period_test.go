package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurrencePeriodAdd(t *testing.T) {
	tests := []struct {
		name   string
		period RecurrencePeriod
		from   string
		n      int
		want   string
	}{
		{"month into leap february", RecurrencePeriod{Months, 1}, "2024-01-31", 1, "2024-02-29"},
		{"month into february", RecurrencePeriod{Months, 1}, "2023-01-31", 1, "2023-02-28"},
		{"quarter clamps", RecurrencePeriod{Quarters, 1}, "2023-11-30", 1, "2024-02-29"},
		{"leap day yearly", RecurrencePeriod{Years, 1}, "2024-02-29", 1, "2025-02-28"},
		{"leap day every 4 years", RecurrencePeriod{Years, 4}, "2024-02-29", 1, "2028-02-29"},
		{"every 2 weeks", RecurrencePeriod{Weeks, 2}, "2024-01-01", 1, "2024-01-15"},
		{"days exact", RecurrencePeriod{Days, 10}, "2024-02-25", 1, "2024-03-06"},
		{"backwards", RecurrencePeriod{Months, 1}, "2024-03-31", -1, "2024-02-29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.period.Add(MustParseDate(tt.from), tt.n)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestOccurrenceIsAnchored(t *testing.T) {
	p := RecurrencePeriod{Unit: Months, Amount: 1}
	first := MustParseDate("2023-01-31")
	var got []string
	for k := 0; k < 4; k++ {
		got = append(got, p.Occurrence(first, k).String())
	}
	assert.Equal(t, []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"}, got)
}

func TestIndexSearch(t *testing.T) {
	p := RecurrencePeriod{Unit: Months, Amount: 1}
	first := MustParseDate("2024-01-31")

	assert.Equal(t, 0, p.IndexOnOrAfter(first, MustParseDate("2023-12-01")))
	assert.Equal(t, 0, p.IndexOnOrAfter(first, first))
	assert.Equal(t, 1, p.IndexOnOrAfter(first, MustParseDate("2024-02-29")))
	assert.Equal(t, 2, p.IndexOnOrAfter(first, MustParseDate("2024-03-01")))
	assert.Equal(t, 1, p.LastIndexBefore(first, MustParseDate("2024-03-31")))
	assert.Equal(t, -1, p.LastIndexBefore(first, first))

	daily := RecurrencePeriod{Unit: Days, Amount: 1}
	start := MustParseDate("2000-01-01")
	k := daily.IndexOnOrAfter(start, MustParseDate("2024-01-01"))
	assert.Equal(t, "2024-01-01", daily.Occurrence(start, k).String())
}

func TestRecurrencePeriodValidate(t *testing.T) {
	require.NoError(t, RecurrencePeriod{Unit: Quarters, Amount: 1}.Validate())

	err := RecurrencePeriod{Unit: Months, Amount: 0}.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	err = RecurrencePeriod{Unit: "fortnights", Amount: 1}.Validate()
	assert.True(t, IsValidationError(err))
}

func TestPeriodUnitFromJSON(t *testing.T) {
	var p RecurrencePeriod
	require.NoError(t, json.Unmarshal([]byte(`{"unit":"Months","amount":1}`), &p))
	assert.Equal(t, RecurrencePeriod{Unit: Months, Amount: 1}, p)

	err := json.Unmarshal([]byte(`{"unit":"fortnights","amount":1}`), &p)
	assert.True(t, IsValidationError(err))
}

func TestRecurrenceTotals(t *testing.T) {
	tests := []struct {
		name     string
		period   RecurrencePeriod
		sum      string
		perMonth string
		perYear  string
	}{
		{"monthly", RecurrencePeriod{Months, 1}, "100.00", "100.00", "1200.00"},
		{"every two months", RecurrencePeriod{Months, 2}, "50.00", "25.00", "300.00"},
		{"quarterly", RecurrencePeriod{Quarters, 1}, "300.00", "100.00", "1200.00"},
		{"yearly", RecurrencePeriod{Years, 1}, "120.00", "10.00", "120.00"},
		{"weekly", RecurrencePeriod{Weeks, 1}, "10.00", "43.48", "521.78"},
		{"daily", RecurrencePeriod{Days, 1}, "1.00", "30.43", "365.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals := tt.period.Totals(MustParseMoney(tt.sum))
			assert.Equal(t, tt.perMonth, totals.PerMonth.String())
			assert.Equal(t, tt.perYear, totals.PerYear.String())
		})
	}
}
