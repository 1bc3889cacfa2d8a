package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JKR8/querytorque-v8-sub011/internal/types"
)

// LoadDir reads every {id}.json gold example under dir, the same
// read-directory-of-JSON-files shape as rules.LoadDir. Regression
// (negative) examples live one level down in a regressions/
// subdirectory and are not returned here; FindByID does search them.
func LoadDir(dir string) ([]types.GoldExample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus.LoadDir: %w", err)
	}

	var out []types.GoldExample
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ex, err := loadOne(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

// FindByID searches root (the examples/ directory) for an example with
// the given id, across every dialect subdirectory and its regressions/
// subdirectory, since the CLI's validate-example takes only an id.
func FindByID(root, id string) (types.GoldExample, error) {
	dialects, err := os.ReadDir(root)
	if err != nil {
		return types.GoldExample{}, fmt.Errorf("corpus.FindByID: %w", err)
	}
	candidates := []string{}
	for _, d := range dialects {
		if !d.IsDir() {
			continue
		}
		candidates = append(candidates,
			filepath.Join(root, d.Name(), id+".json"),
			filepath.Join(root, d.Name(), "regressions", id+".json"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return loadOne(path)
		}
	}
	return types.GoldExample{}, fmt.Errorf("corpus.FindByID: no example with id %q under %s", id, root)
}

func loadOne(path string) (types.GoldExample, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path under examples dir
	if err != nil {
		return types.GoldExample{}, fmt.Errorf("corpus.LoadDir: read %s: %w", path, err)
	}
	var ex types.GoldExample
	if err := json.Unmarshal(data, &ex); err != nil {
		return types.GoldExample{}, fmt.Errorf("corpus.LoadDir: parse %s: %w", path, err)
	}
	return ex, nil
}
