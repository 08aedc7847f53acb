package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntity("e1", EntityTypePerson, "Jef Adriaenssens", now)

	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, EntityTypePerson, e.Type)
	assert.Equal(t, "Jef Adriaenssens", e.CanonicalName)
	assert.Equal(t, []string{"Jef Adriaenssens"}, e.Aliases)
	assert.Equal(t, 1, e.MentionCount)
	assert.Equal(t, now, e.FirstSeen)
	assert.Equal(t, now, e.LastSeen)
}

func TestEntity_RecordMention(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntity("e1", EntityTypePerson, "Jef", first)

	later := first.Add(48 * time.Hour)
	e.RecordMention("jef a.", later)
	e.RecordMention("Jef Adriaenssens", later.Add(time.Hour))

	assert.Equal(t, 3, e.MentionCount)
	assert.Equal(t, []string{"Jef", "jef a.", "Jef Adriaenssens"}, e.Aliases)
	assert.Equal(t, first, e.FirstSeen)
	assert.Equal(t, later.Add(time.Hour), e.LastSeen)
}

func TestEntity_RecordMention_CaseInsensitiveAlias(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntity("e1", EntityTypeProject, "Apollo", now)

	e.RecordMention("APOLLO", now.Add(time.Minute))

	assert.Equal(t, 2, e.MentionCount)
	assert.Len(t, e.Aliases, 1, "case variants should not duplicate aliases")
}

func TestValidateEntity(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid entity passes", func(t *testing.T) {
		e := NewEntity("e1", EntityTypeTeam, "Platform Team", now)
		require.NoError(t, ValidateEntity(e))
	})

	t.Run("nil entity fails", func(t *testing.T) {
		assert.Error(t, ValidateEntity(nil))
	})

	t.Run("missing ID fails", func(t *testing.T) {
		e := NewEntity("", EntityTypeTeam, "Platform Team", now)
		assert.Error(t, ValidateEntity(e))
	})

	t.Run("invalid type fails", func(t *testing.T) {
		e := NewEntity("e1", EntityType("ROBOT"), "R2", now)
		assert.Error(t, ValidateEntity(e))
	})

	t.Run("zero mention count fails", func(t *testing.T) {
		e := NewEntity("e1", EntityTypeTeam, "Platform Team", now)
		e.MentionCount = 0
		assert.Error(t, ValidateEntity(e))
	})
}

func TestIsValidEntityType(t *testing.T) {
	for _, valid := range []EntityType{EntityTypePerson, EntityTypeProject, EntityTypeTeam, EntityTypeDate, EntityTypeTopic} {
		assert.True(t, IsValidEntityType(valid), string(valid))
	}
	assert.False(t, IsValidEntityType(EntityType("person")))
	assert.False(t, IsValidEntityType(EntityType("")))
}
