// Package config loads tschart configuration.
//
// Values are layered, lowest precedence first:
//
//  1. DefaultConfig
//  2. an optional YAML file (--config or TSCHART_CONFIG)
//  3. TSCHART_* environment variables, e.g. TSCHART_PIPELINE_WINDOWS=5,20
//  4. command line flags, applied by the caller before a final Validate
//
// Example file:
//
//	pipeline:
//	  output_dir: charts
//	  value_column: close
//	  windows: [5, 20]
//	  moving_average: ma
//	chart:
//	  format: pdf
//	logging:
//	  level: debug
package config
