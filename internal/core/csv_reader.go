package core

// csv_reader.go streams a CSV file one record at a time.
//
// The source is decoded through golang.org/x/text so that a UTF-8 (or
// UTF-16) byte order mark is consumed and invalid UTF-8 sequences are
// replaced with U+FFFD instead of failing the parse. Memory use is bounded
// by the longest record, never by the file size.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MsgColumnCount is recorded against rows whose column count differs from
// the header's.
const MsgColumnCount = "The number of columns does not match the header"

// MsgRowUnparseable is recorded against rows the CSV parser rejects.
const MsgRowUnparseable = "The row could not be parsed as CSV"

// MalformedInputError reports a file that cannot be processed at all: an
// empty stream, an unreadable header, missing columns or a read failure.
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid csv: %s: %v", e.Reason, e.Err)
	}
	return "invalid csv: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing description of the failure.
func (e *MalformedInputError) Message() string {
	return "The file could not be read: " + e.Reason + "."
}

// Record is one data row. Values are looked up by header name.
type Record struct {
	// RowNumber is 1-based and excludes the header line.
	RowNumber int

	// Problem is set when the row itself is structurally broken. Such a
	// record carries no values.
	Problem string

	values []string
	index  map[string]int
}

// Get returns the trimmed value of column, or "" when absent.
func (r Record) Get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// CSVReader yields records from a CSV stream after consuming its header.
// It is single-pass and not safe for concurrent use.
type CSVReader struct {
	csv     *csv.Reader
	counter *countingReader
	header  []string
	index   map[string]int
	row     int
}

// NewCSVReader reads the header from src and checks that every required
// column is present. Header failures are returned as *MalformedInputError.
func NewCSVReader(src io.Reader, required ...string) (*CSVReader, error) {
	counter := &countingReader{r: src}
	decoded := transform.NewReader(counter, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	r := csv.NewReader(decoded)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Reason: "the file is empty"}
	}
	if err != nil {
		return nil, &MalformedInputError{Reason: "the header row could not be parsed", Err: err}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := index[h]; !dup && h != "" {
			index[h] = i
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MalformedInputError{
			Reason: "missing required column(s) " + strings.Join(missing, ", "),
		}
	}

	return &CSVReader{
		csv:     r,
		counter: counter,
		header:  header,
		index:   index,
	}, nil
}

// Header returns the cleaned header names in file order.
func (c *CSVReader) Header() []string {
	return c.header
}

// BytesRead returns the number of raw bytes consumed from the source.
func (c *CSVReader) BytesRead() int64 {
	return c.counter.n
}

// Next returns the next record, or io.EOF when the stream is exhausted.
//
// Rows with a wrong column count or a CSV syntax error are returned as
// records with Problem set so the caller can report them and carry on. A
// failure of the underlying stream is fatal and returned as
// *MalformedInputError.
func (c *CSVReader) Next() (Record, error) {
	values, err := c.csv.Read()
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}

	var parseErr *csv.ParseError
	if err != nil && !errors.As(err, &parseErr) {
		return Record{}, &MalformedInputError{
			Reason: fmt.Sprintf("reading failed after row %d", c.row),
			Err:    err,
		}
	}

	c.row++
	rec := Record{RowNumber: c.row, index: c.index}

	switch {
	case parseErr != nil:
		rec.Problem = MsgRowUnparseable
	case len(values) != len(c.header):
		rec.Problem = MsgColumnCount
	default:
		rec.values = values
	}
	return rec, nil
}

// countingReader tracks bytes read from the raw source.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
