// Package dataprocessing loads tabular time series from disk.
//
// # Supported formats
//
//   - .csv  comma separated values
//   - .txt  delimited text; the delimiter is detected from the first lines
//     (comma, semicolon, tab, pipe, or runs of blanks)
//   - .xlsx Office Open XML workbooks (first sheet)
//   - .xls  legacy BIFF workbooks (first sheet)
//
// # Usage
//
//	loader := dataprocessing.NewLoader(logger)
//	table, err := loader.Load(ctx, "prices.csv", "date", "close")
//	if err != nil {
//	    return err
//	}
//
// # Error Handling
//
// Load returns *errors.Error values from tschart/internal/errors:
//
//   - not_found           the file does not exist
//   - unsupported_format  the extension is not one of the above
//   - missing_column      the date or value column is absent
//   - read_failure        the parser failed or a date did not parse
//   - type_violation      the value column is not numeric
//
// Extension checks happen before anything is read, and column checks happen
// before any cell is interpreted.
package dataprocessing
