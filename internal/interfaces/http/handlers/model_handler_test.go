package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molbayes/internal/application/modeling"
	"github.com/turtacn/molbayes/internal/domain/molecule"
	"github.com/turtacn/molbayes/pkg/errors"
)

func TestModelHandler_SetDefaults(t *testing.T) {
	h := NewModelHandler(modeling.NewService(nil), ModelDefaults{Kind: molecule.ECFP4}, nil)
	assert.Equal(t, molecule.ECFP4, h.Defaults().Kind)

	h.SetDefaults(ModelDefaults{Kind: molecule.ECFP2, Folding: 512, Validation: "loo"})
	d := h.Defaults()
	assert.Equal(t, molecule.ECFP2, d.Kind)
	assert.Equal(t, 512, d.Folding)
	assert.Equal(t, "loo", d.Validation)
}

func TestKindOrDefault(t *testing.T) {
	k, err := kindOrDefault("", molecule.ECFP6)
	require.NoError(t, err)
	assert.Equal(t, molecule.ECFP6, k)

	k, err = kindOrDefault("ecfp0", molecule.ECFP6)
	require.NoError(t, err)
	assert.Equal(t, molecule.ECFP0, k)

	_, err = kindOrDefault("MACCS", molecule.ECFP6)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFingerprintKindUnsupported))
}
