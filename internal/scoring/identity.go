package scoring

import (
	"encoding/json"
	"fmt"
	"os"

	"curewatch/internal/fileutil"
	"curewatch/internal/modelstore"
)

// Identity is the JSON side file of a scored run. The model fields are
// empty when no model was available.
type Identity struct {
	ModelAutoclave string            `json:"model_autoclave,omitempty"`
	ModelRecipe    string            `json:"model_recipe,omitempty"`
	ModelZThr      modelstore.Values `json:"model_z_thr,omitempty"`
	ZMean          modelstore.Values `json:"z_mean,omitempty"`
	ZStd           modelstore.Values `json:"z_std,omitempty"`
	ZScore         modelstore.Values `json:"z_score,omitempty"`
}

// SameModel reports whether both identities name the same model.
func (i Identity) SameModel(other Identity) bool {
	return i.ModelRecipe != "" && i.ModelAutoclave == other.ModelAutoclave && i.ModelRecipe == other.ModelRecipe
}

func readIdentity(path string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return id, nil
}

func writeIdentity(path string, id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data)
}
