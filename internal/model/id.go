package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for use as a result identifier. ULIDs
// generated by one process are strictly increasing, even within the same
// millisecond, so ids sort by creation order.
func NewID() string {
	return ulid.Make().String()
}
