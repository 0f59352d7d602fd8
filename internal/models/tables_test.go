package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNamesFollowAllModels(t *testing.T) {
	models := AllModels()
	names := TableNames()
	require.Len(t, names, len(models))

	for i, m := range models {
		tabler, ok := m.(interface{ TableName() string })
		require.True(t, ok, "%T has no table name", m)
		assert.Equal(t, tabler.TableName(), names[i])
	}
}
