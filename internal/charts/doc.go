// Package charts draws a computed column over its raw series and saves the
// result as png, jpg or pdf.
//
// Every chart has the date column on the X axis, the raw values labeled
// "Raw data" and the computed column labeled with its own name. Files are
// named <column>.<format> inside the output directory, which is created when
// missing. Drawing and encoding errors are reported as render_failure.
package charts
