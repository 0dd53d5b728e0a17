package core

import "sort"

// ImportJobResult is the report of one import run. Row numbers are 1-based
// and exclude the header.
type ImportJobResult struct {
	NumSuccess       int              `json:"NumSuccess"`
	NumSkipped       int              `json:"NumSkipped"`
	NumInvalid       int              `json:"NumInvalid"`
	Status           JobStatus        `json:"Status"`
	SkippedReasons   map[string][]int `json:"SkippedReasons"`
	ValidationErrors map[string][]int `json:"ValidationErrors"`
}

// NumRows returns the number of data rows accounted for.
func (r ImportJobResult) NumRows() int {
	return r.NumSuccess + r.NumSkipped + r.NumInvalid
}

// ResultAggregator accumulates row outcomes for a single run. Each row must
// be recorded exactly once, under exactly one outcome.
type ResultAggregator struct {
	numSuccess int
	numSkipped int
	numInvalid int
	skipped    map[string][]int
	invalid    map[string][]int
}

// NewResultAggregator returns an empty aggregator.
func NewResultAggregator() *ResultAggregator {
	return &ResultAggregator{
		skipped: make(map[string][]int),
		invalid: make(map[string][]int),
	}
}

func (a *ResultAggregator) RecordSuccess() {
	a.numSuccess++
}

func (a *ResultAggregator) RecordSkip(reason string, row int) {
	a.numSkipped++
	a.skipped[reason] = append(a.skipped[reason], row)
}

// RecordInvalid counts row once and files it under each distinct message.
func (a *ResultAggregator) RecordInvalid(row int, messages []string) {
	a.numInvalid++
	done := make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		if _, dup := done[msg]; dup {
			continue
		}
		done[msg] = struct{}{}
		a.invalid[msg] = append(a.invalid[msg], row)
	}
}

// Processed returns the number of rows recorded so far.
func (a *ResultAggregator) Processed() int {
	return a.numSuccess + a.numSkipped + a.numInvalid
}

// Finalize returns a Finished report with every row list sorted ascending.
// The report shares no state with the aggregator.
func (a *ResultAggregator) Finalize() ImportJobResult {
	return ImportJobResult{
		NumSuccess:       a.numSuccess,
		NumSkipped:       a.numSkipped,
		NumInvalid:       a.numInvalid,
		Status:           StatusFinished,
		SkippedReasons:   sortedCopy(a.skipped),
		ValidationErrors: sortedCopy(a.invalid),
	}
}

// FailedResult is the report of a run that could not read its input.
func FailedResult() ImportJobResult {
	return ImportJobResult{
		Status:           StatusFailed,
		SkippedReasons:   map[string][]int{},
		ValidationErrors: map[string][]int{},
	}
}

func sortedCopy(m map[string][]int) map[string][]int {
	out := make(map[string][]int, len(m))
	for k, rows := range m {
		c := append([]int(nil), rows...)
		sort.Ints(c)
		out[k] = c
	}
	return out
}
