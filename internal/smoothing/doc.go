// Package smoothing computes rolling and exponentially weighted means over
// the value column of a domain.Table.
//
// Both RollingMean and EWMMean validate the whole request before touching the
// table: the value column must exist and be numeric, and every window or
// span must be at least 1. On success one column per parameter is appended,
// named "<base>_<param>", and the same table is returned. Blank cells are
// treated as missing observations.
package smoothing
