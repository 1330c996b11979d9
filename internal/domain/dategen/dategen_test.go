package dategen_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/domain/dategen"
)

func TestGenerateDefaultsMatchScenario(t *testing.T) {
	now := time.Date(2025, 1, 29, 3, 0, 0, 0, time.UTC)

	got := dategen.Generate(dategen.Options{Now: now})

	assert.Len(t, got, 15)
	assert.Equal(t, dategen.QueryDatePlatform{Date: "2025-01-28", Platform: "S2A"}, got[0])
	assert.Equal(t, dategen.QueryDatePlatform{Date: "2025-01-28", Platform: "S2C"}, got[2])
	assert.Equal(t, dategen.QueryDatePlatform{Date: "2025-01-24", Platform: "S2C"}, got[len(got)-1])
}

func TestGenerateIsPureAndIdempotent(t *testing.T) {
	opts := dategen.Options{Now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), LookbackDays: 3, Platforms: []string{"S2A"}}

	first := dategen.Generate(opts)
	second := dategen.Generate(opts)

	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestGenerateCustomLookbackAndPlatforms(t *testing.T) {
	opts := dategen.Options{
		Now:          time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		LookbackDays: 2,
		Platforms:    []string{"S2A", "S2B"},
	}

	got := dategen.Generate(opts)

	assert.Equal(t, []dategen.QueryDatePlatform{
		{Date: "2025-03-09", Platform: "S2A"},
		{Date: "2025-03-09", Platform: "S2B"},
		{Date: "2025-03-08", Platform: "S2A"},
		{Date: "2025-03-08", Platform: "S2B"},
	}, got)
}
