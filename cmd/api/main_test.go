package main

import (
	"testing"

	"marketplace/internal/access"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAccessTable(t *testing.T) {
	for _, mode := range []access.Mode{access.ModeCompat, access.ModeHardened} {
		table, err := loadAccessTable(mode)
		require.NoError(t, err, mode)
		assert.Equal(t, mode, table.Mode())
	}

	_, err := loadAccessTable(access.Mode("open"))
	assert.Error(t, err)
}
