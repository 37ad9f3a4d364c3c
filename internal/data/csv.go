package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
	"github.com/frontier-mc/frontier/internal/portfolio"
)

// ReadPricesCSV reads a wide price table: a header `date,<asset>,...` followed by
// one row per day (YYYY-MM-DD) in chronological order. Empty cells are missing
// observations.
func ReadPricesCSV(r io.Reader) (*portfolio.PriceHistory, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("read csv header: %v", err))
	}
	if len(header) < 2 {
		return nil, apperrors.NewAssetMismatchError("csv needs a date column and at least one asset column")
	}

	assets := make([]string, len(header)-1)
	for i, h := range header[1:] {
		assets[i] = strings.TrimSpace(h)
	}
	prices := make([][]float64, len(assets))
	var dates []time.Time

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("read csv line %d: %v", line, err))
		}

		d, err := time.Parse(dayLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("line %d: bad date %q", line, rec[0]))
		}
		dates = append(dates, d)

		for i, cell := range rec[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				prices[i] = append(prices[i], math.NaN())
				continue
			}
			p, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, apperrors.NewAssetMismatchError(
					fmt.Sprintf("line %d: bad price %q for %s", line, cell, assets[i]))
			}
			prices[i] = append(prices[i], p)
		}
	}

	return portfolio.NewPriceHistory(assets, dates, prices)
}

// WriteFrontierCSV writes one row per draw: seq, return, risk, sharpe and a
// weight column per asset.
func WriteFrontierCSV(w io.Writer, assets []string, results []portfolio.PortfolioResult) error {
	cw := csv.NewWriter(w)

	header := append([]string{"seq", "return", "risk", "sharpe"}, assets...)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, r := range results {
		row[0] = strconv.Itoa(r.Seq)
		row[1] = formatF(r.Return)
		row[2] = formatF(r.Risk)
		row[3] = formatF(r.Sharpe)
		for i, x := range r.Weights {
			row[4+i] = formatF(x)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
