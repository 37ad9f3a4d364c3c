package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

const pricesCSV = `date,AAA,BBB,CCC
2024-02-01,100,50,20
2024-02-02,101,49.5,20.4
2024-02-05,102.5,50.2,20.1
2024-02-06,101.8,51,20.9
2024-02-07,103,50.7,21.3
2024-02-08,104.1,50.1,21
2024-02-09,103.6,51.4,21.6
2024-02-12,105,52,21.2
`

func writePrices(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(pricesCSV), 0o644))
	return path
}

func TestRun_JSONSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"-prices", writePrices(t), "-n", "400", "-seed", "5", "-json", "-q"},
		nil, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var sum summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &sum))
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, sum.Assets)
	assert.Equal(t, uint64(5), sum.Seed)
	assert.Equal(t, 400, sum.Draws)
	assert.Equal(t, 7, sum.Periods)
	require.NotNil(t, sum.MaxSharpe.Sharpe)

	total := 0.0
	for _, w := range sum.MinRisk.Weights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.LessOrEqual(t, sum.MinRisk.Risk, sum.MaxSharpe.Risk)
}

func TestRun_StdinAndCloudCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cloud.csv")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"-n", "250", "-seed", "1", "-sampler", "dirichlet", "-returns", "log", "-out", out},
		strings.NewReader(pricesCSV), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "max sharpe")
	assert.Contains(t, stdout.String(), "min risk")
	assert.Contains(t, stderr.String(), "simulating... 100%")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 251)
	assert.Equal(t, "seq,return,risk,sharpe,AAA,BBB,CCC", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,"))
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		input    string
		userErr  bool
		contains string
	}{
		{"bad seed", []string{"-seed", "abc"}, pricesCSV, true, "seed"},
		{"zero simulations", []string{"-n", "0"}, pricesCSV, true, "numSimulations"},
		{"unknown flag", []string{"-bogus"}, pricesCSV, true, "flags"},
		{"single price row", []string{"-q"}, "date,A,B\n2024-01-02,1,2\n", true, "INSUFFICIENT_DATA"},
		{"missing file", []string{"-prices", "/nonexistent/prices.csv"}, "", false, "open prices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, strings.NewReader(tt.input), &stdout, &stderr)
			require.Error(t, err)
			assert.Equal(t, tt.userErr, apperrors.IsUserError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"-n", "5000", "-q"}, strings.NewReader(pricesCSV), &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSimulationCancelled))
	assert.Empty(t, stdout.String())
}
