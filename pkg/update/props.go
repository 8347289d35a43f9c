package update

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/install"
)

// readPropMap and writePropMap mirror pkg/install's private prop-store
// helpers for the directory property store, which the editor updates
// directly rather than through pkg/install (a directory has no text to
// merge, so it never needs pkg/install's text/property merge matrix).
func readPropMap(path string) (install.PropMap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return install.PropMap{}, nil
	}
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	var m install.PropMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if m == nil {
		m = install.PropMap{}
	}
	return m, nil
}

func writePropMap(path string, m install.PropMap) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if err := os.MkdirAll(parentDir(path), 0o755); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
