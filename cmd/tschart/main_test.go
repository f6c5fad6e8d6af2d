package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tschart/internal/errors"
)

const sampleCSV = "date,value\n2024-01-01,10\n2024-01-02,20\n2024-01-03,30\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseArgs_InterleavedPositional(t *testing.T) {
	opts, err := parseArgs([]string{"-w", "2,3", "in.csv", "--mov-avg", "ma", "-w", "4", "--format=pdf"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "in.csv", opts.input)
	assert.Equal(t, intList{2, 3, 4}, opts.windows)
	assert.Equal(t, "ma", opts.movAvg)
	assert.True(t, opts.set["windows"])
	assert.True(t, opts.set["mov-avg"])
	assert.True(t, opts.set["format"])
	assert.False(t, opts.set["spans"])
	assert.False(t, opts.set["output"])
}

func TestParseArgs_ShortAliases(t *testing.T) {
	opts, err := parseArgs([]string{"in.csv", "-o", "charts", "-s", "10"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "charts", opts.outputDir)
	assert.Equal(t, intList{10}, opts.spans)
	assert.True(t, opts.set["output"])
	assert.True(t, opts.set["spans"])
}

func TestParseArgs_SpaceSeparatedLists(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantInput   string
		wantWindows intList
		wantSpans   intList
	}{
		{
			name:        "list before input",
			args:        []string{"-w", "2", "3", "in.csv"},
			wantInput:   "in.csv",
			wantWindows: intList{2, 3},
		},
		{
			name:        "long flags with inline value",
			args:        []string{"in.csv", "--windows=2", "5,7", "--spans", "4", "9", "--mov-avg", "ma"},
			wantInput:   "in.csv",
			wantWindows: intList{2, 5, 7},
			wantSpans:   intList{4, 9},
		},
		{
			name:        "list ends at the next flag",
			args:        []string{"-s", "1", "2", "-w", "3", "in.csv"},
			wantInput:   "in.csv",
			wantWindows: intList{3},
			wantSpans:   intList{1, 2},
		},
		{
			name:        "numeric input after double dash",
			args:        []string{"-w", "2", "3", "--", "10"},
			wantInput:   "10",
			wantWindows: intList{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseArgs(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInput, opts.input)
			assert.Equal(t, tt.wantWindows, opts.windows)
			assert.Equal(t, tt.wantSpans, opts.spans)
		})
	}
}

func TestParseArgs_DoubleDashEndsFlags(t *testing.T) {
	opts, err := parseArgs([]string{"--mov-avg", "ma", "--", "-w.csv"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "-w.csv", opts.input)
	assert.Nil(t, opts.windows)
	assert.False(t, opts.set["windows"])

	_, err = parseArgs([]string{"--", "in.csv", "--format", "pdf"}, io.Discard)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidParameter, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "got 3")
}

func TestExpandLists(t *testing.T) {
	assert.Equal(t,
		[]string{"-w", "2", "-w", "3", "in.csv", "-o", "4"},
		expandLists([]string{"-w", "2", "3", "in.csv", "-o", "4"}))
	assert.Equal(t,
		[]string{"-s", "1", "--", "2", "3"},
		expandLists([]string{"-s", "1", "--", "2", "3"}))
	assert.Equal(t, []string{"-w"}, expandLists([]string{"-w"}))
}

func TestUsageDocumentsListForms(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs([]string{"-h"}, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), `"-w 2 3", "-w 2,3" and`)
	assert.Contains(t, stderr.String(), `"--"`)
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantKind apperrors.Kind
	}{
		{name: "no input", args: []string{"--mov-avg", "ma"}, wantKind: apperrors.KindInvalidParameter},
		{name: "two inputs", args: []string{"a.csv", "b.csv"}, wantKind: apperrors.KindInvalidParameter},
		{name: "bad window", args: []string{"a.csv", "-w", "2,x"}, wantKind: apperrors.KindUnknown},
		{name: "unknown flag", args: []string{"a.csv", "--nope"}, wantKind: apperrors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperrors.KindOf(err))
		})
	}
}

func TestIntList(t *testing.T) {
	var l intList
	require.NoError(t, l.Set("1, 2,,3"))
	require.NoError(t, l.Set("4"))
	assert.Equal(t, intList{1, 2, 3, 4}, l)
	assert.Equal(t, "1,2,3,4", l.String())
	assert.Error(t, l.Set("1.5"))
}

func TestRun_WritesChartsAndPrintsPaths(t *testing.T) {
	input := writeInput(t, "series.csv", sampleCSV)
	out := filepath.Join(t.TempDir(), "out")

	code, stdout, stderr := runCLI(t, input, "-o", out, "--mov-avg", "ma", "-w", "2", "--ewm-avg", "ewm", "-s", "1,3")
	require.Equal(t, 0, code, stderr)

	want := []string{
		filepath.Join(out, "ma_2.png"),
		filepath.Join(out, "ewm_1.png"),
		filepath.Join(out, "ewm_3.png"),
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(stdout), "\n"))
	for _, p := range want {
		assert.FileExists(t, p)
	}
}

func TestRun_LogsToStderrAndRestoresDefaultLogger(t *testing.T) {
	input := writeInput(t, "series.csv", sampleCSV)
	prev := slog.Default()

	code, _, stderr := runCLI(t, input, "-o", filepath.Join(t.TempDir(), "out"), "--log-level", "debug")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stderr, `"msg":"tschart starting"`)
	assert.Same(t, prev, slog.Default())
}

func TestRun_NoFamiliesPrintsNothing(t *testing.T) {
	input := writeInput(t, "series.csv", sampleCSV)

	code, stdout, stderr := runCLI(t, input, "-o", filepath.Join(t.TempDir(), "out"))
	assert.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
}

func TestRun_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeInput(t, "series.csv", sampleCSV)
	jsonPath := writeInput(t, "series.json", `{}`)
	textPath := writeInput(t, "text.csv", "date,value\n2024-01-01,ten\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "help", args: []string{"-h"}, want: 0},
		{name: "missing input argument", args: []string{}, want: 2},
		{name: "unknown flag", args: []string{csvPath, "--bogus"}, want: 2},
		{name: "invalid format", args: []string{csvPath, "--format", "gif"}, want: 2},
		{name: "invalid window", args: []string{csvPath, "-w", "0", "--mov-avg", "ma"}, want: 2},
		{name: "file not found", args: []string{filepath.Join(dir, "nope.csv")}, want: 3},
		{name: "unsupported extension", args: []string{jsonPath}, want: 4},
		{name: "missing value column", args: []string{csvPath, "--value-col", "price"}, want: 5},
		{name: "non numeric values", args: []string{textPath}, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, _ := runCLI(t, append(tt.args, "-o", filepath.Join(dir, "out"))...)
			assert.Equal(t, tt.want, code)
			assert.Empty(t, stdout)
		})
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tschart.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
pipeline:
  windows: [3]
  spans: [4]
  moving_average: file_ma
chart:
  format: pdf
`), 0644))
	t.Setenv("TSCHART_PIPELINE_SPANS", "6")
	t.Setenv("TSCHART_CHART_FORMAT", "jpg")

	opts, err := parseArgs([]string{"in.csv", "--config", cfgPath, "--format", "png", "--ewm-adjust=false"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)

	assert.Equal(t, []int{3}, cfg.Pipeline.Windows, "file over defaults")
	assert.Equal(t, []int{6}, cfg.Pipeline.Spans, "env over file")
	assert.Equal(t, "png", cfg.Chart.Format, "flag over env")
	assert.Equal(t, "file_ma", cfg.Pipeline.MovingAverage)
	assert.False(t, cfg.Pipeline.EWMAdjust)
	assert.Equal(t, "output", cfg.Pipeline.OutputDir)

	req := newRequest(opts.input, cfg)
	assert.Equal(t, "in.csv", req.InputPath)
	assert.False(t, req.EWMOptions.Adjust)
}

func TestLoadConfig_ConfigFileFromEnv(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tschart.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("pipeline:\n  value_column: close\n"), 0644))
	t.Setenv("TSCHART_CONFIG", cfgPath)

	opts, err := parseArgs([]string{"in.csv"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "close", cfg.Pipeline.ValueColumn)
}

func TestLoadConfig_FormatAlias(t *testing.T) {
	opts, err := parseArgs([]string{"in.csv", "--format", "JPEG"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "jpg", cfg.Chart.Format)
}
