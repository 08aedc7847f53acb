package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is the closed set of entity kinds the extraction agent may emit.
type EntityType string

const (
	EntityTypePerson  EntityType = "PERSON"
	EntityTypeProject EntityType = "PROJECT"
	EntityTypeTeam    EntityType = "TEAM"
	EntityTypeDate    EntityType = "DATE"
	EntityTypeTopic   EntityType = "TOPIC"
)

// Entity is a canonical knowledge-graph node: one node per real-world
// referent, with every observed surface form recorded as an alias.
type Entity struct {
	ID            string
	Type          EntityType
	CanonicalName string
	Aliases       []string
	MentionCount  int
	FirstSeen     time.Time
	LastSeen      time.Time
	Metadata      map[string]string
	Embedding     []float32
}

// NewEntity creates a canonical Entity from its first observation.
func NewEntity(id string, entityType EntityType, name string, seenAt time.Time) *Entity {
	return &Entity{
		ID:            id,
		Type:          entityType,
		CanonicalName: name,
		Aliases:       []string{name},
		MentionCount:  1,
		FirstSeen:     seenAt,
		LastSeen:      seenAt,
		Metadata:      map[string]string{},
	}
}

// HasAlias reports whether the entity already records the given surface form.
// Comparison is case-insensitive.
func (e *Entity) HasAlias(name string) bool {
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// RecordMention registers one more observation of the entity under the given
// surface form, extending last-seen and the alias set.
func (e *Entity) RecordMention(name string, seenAt time.Time) {
	if !e.HasAlias(name) {
		e.Aliases = append(e.Aliases, name)
	}
	e.MentionCount++
	if seenAt.After(e.LastSeen) {
		e.LastSeen = seenAt
	}
}

// ValidateEntity validates an Entity instance.
func ValidateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("entity cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("entity ID is required")
	}

	if e.CanonicalName == "" {
		return fmt.Errorf("entity CanonicalName is required")
	}

	if !IsValidEntityType(e.Type) {
		return fmt.Errorf("entity Type is invalid: %s", e.Type)
	}

	if e.MentionCount < 1 {
		return fmt.Errorf("entity MentionCount must be at least 1")
	}

	return nil
}

// IsValidEntityType checks if an EntityType belongs to the closed set.
func IsValidEntityType(t EntityType) bool {
	switch t {
	case EntityTypePerson, EntityTypeProject, EntityTypeTeam, EntityTypeDate, EntityTypeTopic:
		return true
	}
	return false
}
