package eligibility

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blok13/clanportal/internal/models"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		have    models.StatBlock
		need    models.StatBlock
		ok      bool
		missing []string
	}{
		{
			name:    "single unmet key",
			have:    models.StatBlock{HP: 10, Energy: 5},
			need:    models.StatBlock{HP: 50},
			ok:      false,
			missing: []string{models.StatHP},
		},
		{
			name: "no requirements",
			have: models.StatBlock{},
			need: models.StatBlock{},
			ok:   true,
		},
		{
			name: "equal values pass",
			have: models.StatBlock{Armor: 30, PoisonRes: 12},
			need: models.StatBlock{Armor: 30, PoisonRes: 12},
			ok:   true,
		},
		{
			name:    "missing keys reported in canonical order",
			have:    models.StatBlock{Energy: 100},
			need:    models.StatBlock{PoisonRes: 1, HP: 1, Resistance: 1},
			ok:      false,
			missing: []string{models.StatHP, models.StatResistance, models.StatPoisonRes},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.have, tt.need)
			assert.Equal(t, tt.ok, got.OK)
			assert.Equal(t, tt.missing, got.Missing)
		})
	}
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{OK: true}.Err())

	err := Check(models.StatBlock{}, models.StatBlock{BloodRes: 3}).Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRequirementsNotMet))

	var reqErr *models.RequirementsError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, []string{models.StatBloodRes}, reqErr.Missing)
}
