// Package uuid generates run identifiers.
package uuid

import (
	"github.com/google/uuid"
)

// Generator creates UUIDv7 run IDs so IDs sort by start time.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewRunID returns a UUIDv7, falling back to a random UUIDv4 if the clock
// sequence cannot be read.
func (Generator) NewRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
