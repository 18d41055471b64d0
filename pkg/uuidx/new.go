// Package uuidx generates the ids the broker hands out for registered callbacks.
package uuidx

import "github.com/google/uuid"

// New returns a version 7 UUID. Version 7 ids sort by creation time, so ids created
// later compare greater. It panics if the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
