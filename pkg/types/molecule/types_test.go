package molecule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainingRecord_DecodesDatasetLine(t *testing.T) {
	line := `{"molecule":{"name":"ethanol","atoms":[{"element":"C","implicit_hydrogens":3},` +
		`{"element":"C","implicit_hydrogens":2},{"element":"O","implicit_hydrogens":1}],` +
		`"bonds":[{"from":0,"to":1,"order":1},{"from":1,"to":2,"order":1}]},"active":true}`

	var rec TrainingRecord
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.True(t, rec.Active)
	assert.Equal(t, "ethanol", rec.Molecule.Name)
	require.Len(t, rec.Molecule.Atoms, 3)
	assert.Equal(t, "O", rec.Molecule.Atoms[2].Element)
	assert.Equal(t, 1, rec.Molecule.Atoms[2].ImplicitHydrogens)
	assert.Equal(t, Bond{From: 1, To: 2, Order: 1}, rec.Molecule.Bonds[1])
	assert.Nil(t, rec.Hashes)
}

func TestTrainingRecord_PrecomputedHashes(t *testing.T) {
	var rec TrainingRecord
	require.NoError(t, json.Unmarshal([]byte(`{"molecule":{"atoms":[]},"active":false,"hashes":[7,4294967295]}`), &rec))
	assert.Equal(t, []uint32{7, 4294967295}, rec.Hashes)
	assert.Empty(t, rec.Molecule.Atoms)
}

func TestMolecule_Tetrahedral(t *testing.T) {
	var m Molecule
	require.NoError(t, json.Unmarshal([]byte(`{"atoms":[{"element":"C"}],"tetrahedral":{"0":[1,2,3,-1]}}`), &m))
	assert.Equal(t, [4]int{1, 2, 3, -1}, m.Tetrahedral["0"])
}

func TestAtom_OmitsZeroFields(t *testing.T) {
	data, err := json.Marshal(Atom{Element: "C"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"element":"C"}`, string(data))
}

func TestPrediction_Encoding(t *testing.T) {
	data, err := json.Marshal(Prediction{Name: "x", Raw: 1.5, Scaled: 0.25, ArcTan: 0.3, Overlap: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","raw":1.5,"scaled":0.25,"arctan":0.3,"overlap":1}`, string(data))
}
