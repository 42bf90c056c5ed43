package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionFromAffected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		affected int64
		want     UpsertAction
	}{
		{0, ActionUnchanged},
		{1, ActionInserted},
		{2, ActionUpdated},
		{3, ActionUnchanged},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ActionFromAffected(tt.affected))
		})
	}
}

func TestUpsertStats_AddMerge(t *testing.T) {
	t.Parallel()

	var s UpsertStats
	s.Add(ActionInserted)
	s.Add(ActionInserted)
	s.Add(ActionUpdated)
	s.Add(ActionUnchanged)

	assert.Equal(t, UpsertStats{Inserted: 2, Updated: 1, Unchanged: 1, Attempted: 4}, s)

	var total UpsertStats
	total.Merge(s)
	total.Merge(UpsertStats{Unchanged: 3, Attempted: 3})
	assert.Equal(t, UpsertStats{Inserted: 2, Updated: 1, Unchanged: 4, Attempted: 7}, total)
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	v, err := ParseVariant("full")
	require.NoError(t, err)
	assert.Equal(t, VariantFull, v)

	v, err = ParseVariant("overview")
	require.NoError(t, err)
	assert.Equal(t, VariantOverview, v)

	_, err = ParseVariant("earnings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported variant")
}

func TestVariant_Required(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []Variant{VariantOverview, VariantAnalyst, VariantEarnings}, VariantFull.Required())
	assert.Equal(t, []Variant{VariantOverview, VariantAnalyst}, VariantOverview.Required())
	assert.Equal(t, []Variant{VariantEarnings}, VariantEarnings.Required())
}

func TestStrPtrStatusPtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, StrPtr(""))
	require.NotNil(t, StrPtr("x"))
	assert.Equal(t, "x", *StrPtr("x"))
	assert.Nil(t, StatusPtr(StatusUnknown))
	assert.Equal(t, StatusBeat, *StatusPtr(StatusBeat))
}
