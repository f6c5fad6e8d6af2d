package dataprocessing

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// sniffSampleLines is the number of non-empty lines inspected when detecting
// the delimiter of a .txt file
const sniffSampleLines = 20

// delimiterCandidates are tried in order of preference
var delimiterCandidates = []rune{',', ';', '\t', '|', ' '}

const utf8BOM = "\ufeff"

// rawTable is the parsed, still untyped content of a source file
type rawTable struct {
	header  []string
	records [][]string
	// spreadsheet is set for workbook sources, whose date cells may hold
	// serial day numbers instead of text
	spreadsheet bool
}

// readCSV parses comma-separated content
func readCSV(r io.Reader) (*rawTable, error) {
	return readDelimited(r, ',')
}

// readDelimited parses delimited content with the given separator. Rows with
// more fields than the header are rejected; shorter rows are padded.
func readDelimited(r io.Reader, delim rune) (*rawTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = delim != '\t'

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited data: %w", err)
		}
		rows = append(rows, rec)
	}
	return newRawTable(rows, false)
}

// readWhitespace parses content whose columns are separated by runs of blanks
func readWhitespace(data []byte) (*rawTable, error) {
	var rows [][]string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}
	return newRawTable(rows, false)
}

// readText parses a .txt file after detecting its delimiter
func readText(path string) (*rawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte(utf8BOM))

	delim, err := sniffDelimiter(data)
	if err != nil {
		return nil, err
	}
	if delim == ' ' {
		return readWhitespace(data)
	}
	return readDelimited(bytes.NewReader(data), delim)
}

// sniffDelimiter picks the candidate that splits every sampled line into the
// same number of fields. When no candidate is consistent, the one with the
// highest per-line minimum wins.
func sniffDelimiter(data []byte) (rune, error) {
	var sample []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() && len(sample) < sniffSampleLines {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) != "" {
			sample = append(sample, line)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("scan text: %w", err)
	}
	if len(sample) == 0 {
		return 0, errors.New("could not determine delimiter: file is empty")
	}

	var best rune
	bestMin := 0
	for _, cand := range delimiterCandidates {
		counts := make([]int, len(sample))
		for i, line := range sample {
			counts[i] = countDelimiter(line, cand)
		}
		minCount, consistent := counts[0], true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
			}
			if c < minCount {
				minCount = c
			}
		}
		if consistent && minCount > 0 {
			return cand, nil
		}
		if minCount > bestMin {
			best, bestMin = cand, minCount
		}
	}
	if bestMin == 0 {
		return 0, errors.New("could not determine delimiter")
	}
	return best, nil
}

// countDelimiter counts occurrences of delim outside double quotes. Runs of
// blanks count once when the delimiter is a space.
func countDelimiter(line string, delim rune) int {
	if delim == ' ' {
		n := len(strings.Fields(line))
		if n == 0 {
			return 0
		}
		return n - 1
	}
	count, inQuotes := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			count++
		}
	}
	return count
}

// readXLSX reads the first worksheet of an Office Open XML workbook
func readXLSX(path string) (*rawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	raw, err := newRawTable(rows, true)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheets[0], err)
	}
	return raw, nil
}

// readXLS reads the first worksheet of a legacy BIFF workbook
func readXLS(path string) (raw *rawTable, err error) {
	// the BIFF decoder panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("malformed workbook: %v", r)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	if wb == nil {
		return nil, errors.New("no Workbook stream in compound file")
	}
	if wb.NumSheets() == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("failed to read first sheet")
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return newRawTable(rows, true)
}

// newRawTable splits rows into a header and records, dropping blank rows and
// padding short rows
func newRawTable(rows [][]string, spreadsheet bool) (*rawTable, error) {
	var kept [][]string
	for _, row := range rows {
		if !isBlank(row) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("no header row found")
	}

	header := normalizeHeader(kept[0])
	records := make([][]string, 0, len(kept)-1)
	for i, row := range kept[1:] {
		if len(row) > len(header) {
			if !isBlank(row[len(header):]) {
				return nil, fmt.Errorf("data row %d has %d fields, header has %d", i+1, len(row), len(header))
			}
			row = row[:len(header)]
		}
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		records = append(records, row)
	}
	return &rawTable{header: header, records: records, spreadsheet: spreadsheet}, nil
}

// normalizeHeader trims names, strips a BOM and renames blank or duplicate
// headers ("Unnamed: 3", "price.1")
func normalizeHeader(row []string) []string {
	header := make([]string, len(row))
	used := make(map[string]bool, len(row))
	for i, name := range row {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if used[name] {
			base := name
			for n := 1; used[name]; n++ {
				name = base + "." + strconv.Itoa(n)
			}
		}
		used[name] = true
		header[i] = name
	}
	return header
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
