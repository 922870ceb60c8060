package cryptotax

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// ratePoint is one observed rate at a point in time.
type ratePoint struct {
	ts   Timestamp
	rate decimal.Decimal
}

// Rates is an in-memory historical rate database implementing
// RateOracle. Rates are kept per (from, to) pair as a time-sorted
// series; RateAt answers with the latest observation at or before the
// queried timestamp.
type Rates struct {
	series map[string][]ratePoint
}

// NewRates returns a new empty rate database.
func NewRates() *Rates {
	return &Rates{series: make(map[string][]ratePoint)}
}

func pairKey(from, to string) string { return from + "/" + to }

// Append records one rate observation. Observations may be appended in
// any order, the series is kept sorted.
func (r *Rates) Append(from, to string, ts Timestamp, rate decimal.Decimal) {
	key := pairKey(from, to)
	s := r.series[key]
	s = append(s, ratePoint{ts: ts, rate: rate})
	// keep sorted; appending in order is the common case and costs nothing
	if n := len(s); n > 1 && s[n-1].ts.Before(s[n-2].ts) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].ts.Before(s[j].ts) })
	}
	r.series[key] = s
}

// Has reports whether any observation exists for the pair, in either
// direction.
func (r *Rates) Has(from, to string) bool {
	if _, ok := r.series[pairKey(from, to)]; ok {
		return true
	}
	_, ok := r.series[pairKey(to, from)]
	return ok
}

// RateAt implements RateOracle. Self-conversion is exactly 1. When only
// the inverse pair is recorded, the reciprocal rate is answered.
func (r *Rates) RateAt(from, to string, ts Timestamp) (decimal.Decimal, error) {
	if from == to {
		return decimal.New(1, 0), nil
	}
	if s, ok := r.series[pairKey(from, to)]; ok {
		return lookup(s, ts)
	}
	if s, ok := r.series[pairKey(to, from)]; ok {
		rate, err := lookup(s, ts)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if rate.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("%s at %s: zero inverse rate: %w", pairKey(from, to), ts, ErrNoPriceForTimestamp)
		}
		return decimal.New(1, 0).Div(rate), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%s: %w", pairKey(from, to), ErrUnsupportedAsset)
}

// lookup returns the latest observation at or before ts.
func lookup(s []ratePoint, ts Timestamp) (decimal.Decimal, error) {
	i := sort.Search(len(s), func(i int) bool { return s[i].ts.After(ts) })
	if i == 0 {
		return decimal.Decimal{}, ErrNoPriceForTimestamp
	}
	return s[i-1].rate, nil
}

// DecodeRates reads rate observations from a CSV stream with records
// "from,to,timestamp,rate". A header line is allowed and skipped.
// filename is for error messages only.
func DecodeRates(filename string, in io.Reader) (*Rates, error) {
	r := NewRates()
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = 4
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return r, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse error %s: %w", filename, err)
		}
		line++
		if line == 1 && record[0] == "from" {
			continue
		}
		ts, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse error %s:%v: timestamp %q must be unix seconds: %w", filename, line, record[2], err)
		}
		rate, err := decimal.NewFromString(record[3])
		if err != nil {
			return nil, fmt.Errorf("parse error %s:%v: rate %q must be a decimal number: %w", filename, line, record[3], err)
		}
		r.Append(record[0], record[1], Timestamp(ts), rate)
	}
}

// LoadRates reads rate observations from a CSV file.
func LoadRates(filename string) (*Rates, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load error: cannot open rates file %q: %w", filename, err)
	}
	defer f.Close()
	return DecodeRates(filename, f)
}
