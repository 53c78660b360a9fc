package modeling

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/turtacn/molbayes/pkg/errors"
	mtypes "github.com/turtacn/molbayes/pkg/types/molecule"
)

// ReadTrainingRecords decodes a stream of JSON training records, one per
// line by convention.
func ReadTrainingRecords(r io.Reader) ([]mtypes.TrainingRecord, error) {
	return decodeStream[mtypes.TrainingRecord](r, "training record")
}

// ReadMolecules decodes a stream of JSON molecules.
func ReadMolecules(r io.Reader) ([]mtypes.Molecule, error) {
	return decodeStream[mtypes.Molecule](r, "molecule")
}

func decodeStream[T any](r io.Reader, what string) ([]T, error) {
	dec := json.NewDecoder(r)
	var out []T
	for {
		var v T
		err := dec.Decode(&v)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMoleculeInvalidFormat, "malformed "+what).
				WithDetail(fmt.Sprintf("record=%d", len(out)))
		}
		out = append(out, v)
	}
}
