package dataprocessing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"
)

// maxExcelSerial is the serial day number of 9999-12-31 in the 1900 date system
const maxExcelSerial = 2958465

// parseDate interprets a cell as a timestamp. Spreadsheet cells holding a
// serial day number are converted with the 1900 date system; everything else
// goes through dateparse. All results are in UTC.
func parseDate(cell string, spreadsheet bool) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, errors.New("empty date")
	}
	if spreadsheet {
		if serial, err := strconv.ParseFloat(cell, 64); err == nil && serial > 0 && serial <= maxExcelSerial {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				return time.Time{}, fmt.Errorf("convert serial date %q: %w", cell, err)
			}
			return t.UTC(), nil
		}
	}
	t, err := dateparse.ParseIn(cell, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// normalizeDates brings timestamps to their canonical representation. It is
// idempotent, so re-running it over already normalized dates is harmless.
func normalizeDates(dates []time.Time) []time.Time {
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = d.UTC().Round(0)
	}
	return out
}
