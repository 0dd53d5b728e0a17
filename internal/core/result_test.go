package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultAggregator_Finalize(t *testing.T) {
	agg := NewResultAggregator()
	agg.RecordSuccess()
	agg.RecordSkip(SkipModelEmpty, 7)
	agg.RecordSkip(SkipModelEmpty, 3)
	agg.RecordInvalid(5, []string{"bad name", "bad id", "bad name"})
	agg.RecordInvalid(2, []string{"bad name"})

	assert.Equal(t, 5, agg.Processed())

	res := agg.Finalize()
	assert.Equal(t, StatusFinished, res.Status)
	assert.Equal(t, 1, res.NumSuccess)
	assert.Equal(t, 2, res.NumSkipped)
	assert.Equal(t, 2, res.NumInvalid)
	assert.Equal(t, 5, res.NumRows())
	assert.Equal(t, map[string][]int{SkipModelEmpty: {3, 7}}, res.SkippedReasons)
	assert.Equal(t, map[string][]int{"bad name": {2, 5}, "bad id": {5}}, res.ValidationErrors)

	// The report is detached from the aggregator.
	agg.RecordSkip(SkipModelEmpty, 1)
	assert.Equal(t, []int{3, 7}, res.SkippedReasons[SkipModelEmpty])
}

func TestFailedResult(t *testing.T) {
	res := FailedResult()
	assert.Equal(t, StatusFailed, res.Status)
	assert.Zero(t, res.NumRows())
	assert.NotNil(t, res.SkippedReasons)
	assert.NotNil(t, res.ValidationErrors)
}
