package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "mdtodo/internal/domain"
)

func TestDecodeMeta(t *testing.T) {
	m, err := decodeMeta([]byte(`{"id": "a1", "title": "Buy milk", "priority": "high", "section": "week", "order": 2, "tags": ["home"]}`))
	require.NoError(t, err)
	assert.Equal(t, "a1", m.ID)
	assert.Equal(t, "Buy milk", m.Title)
	assert.Equal(t, 2, m.Order)

	td := m.toDomain("body")
	assert.Equal(t, dom.PriorityHigh, td.Priority)
	assert.Equal(t, dom.SectionWeek, td.Section)
	assert.Equal(t, []string{"home"}, td.Tags)
	assert.Equal(t, "body", td.Content)
}

func TestDecodeMeta_Rejects(t *testing.T) {
	for name, data := range map[string]string{
		"syntax":     `{"id": `,
		"missing id": `{"title": "t"}`,
		"empty id":   `{"id": ""}`,
		"priority":   `{"id": "a", "priority": "urgent"}`,
		"section":    `{"id": "a", "section": "someday"}`,
		"order":      `{"id": "a", "order": "first"}`,
		"not object": `["a"]`,
	} {
		_, err := decodeMeta([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestDecodeMeta_EmptyEnumsDefault(t *testing.T) {
	m, err := decodeMeta([]byte(`{"id": "a", "priority": "", "section": ""}`))
	require.NoError(t, err)
	td := m.toDomain("")
	assert.Equal(t, dom.PriorityMedium, td.Priority)
	assert.Equal(t, dom.SectionToday, td.Section)
	assert.Equal(t, []string{}, td.Tags)
}
