package data

import (
	"sort"
	"time"

	"github.com/frontier-mc/frontier/internal/portfolio"
)

const dayLayout = "2006-01-02"

// Align intersects the calendar days of every series and returns the prices on
// the shared days, oldest first. Days missing for any asset are dropped.
func Align(series []*PriceData) (*portfolio.PriceHistory, error) {
	assets := make([]string, len(series))
	byDay := make([]map[string]float64, len(series))
	counts := make(map[string]int)
	stamp := make(map[string]time.Time)

	for i, pd := range series {
		assets[i] = pd.Ticker
		byDay[i] = make(map[string]float64, len(pd.Closes))
		for j, d := range pd.Dates {
			if j >= len(pd.Closes) {
				break
			}
			key := d.UTC().Format(dayLayout)
			if _, dup := byDay[i][key]; dup {
				// keep the last close of the day
				byDay[i][key] = pd.Closes[j]
				continue
			}
			byDay[i][key] = pd.Closes[j]
			counts[key]++
			if _, ok := stamp[key]; !ok {
				t, _ := time.Parse(dayLayout, key)
				stamp[key] = t
			}
		}
	}

	var days []string
	for day, n := range counts {
		if n == len(series) {
			days = append(days, day)
		}
	}
	sort.Strings(days)

	dates := make([]time.Time, len(days))
	prices := make([][]float64, len(series))
	for i := range prices {
		prices[i] = make([]float64, len(days))
	}
	for t, day := range days {
		dates[t] = stamp[day]
		for i := range series {
			prices[i][t] = byDay[i][day]
		}
	}

	return portfolio.NewPriceHistory(assets, dates, prices)
}
