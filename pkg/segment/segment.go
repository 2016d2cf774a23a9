// Package segment composes RFM segment codes and groups scored customers
// into named cohorts.
package segment

import "strconv"

// Code concatenates the R, F and M scores into a segment code such as "444".
func Code(r, f, m int) string {
	return strconv.Itoa(r) + strconv.Itoa(f) + strconv.Itoa(m)
}
