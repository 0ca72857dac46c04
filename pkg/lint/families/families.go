// Package families provides the built-in rule families.
//
// Each family registers itself with lint.DefaultRegistry from init. Import
// the package for its side effects to make the families available:
//
//	import _ "github.com/leapstack-labs/vaultlint/pkg/lint/families"
package families

import (
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

func init() {
	for _, f := range All() {
		lint.Register(f)
	}
}

// All returns the built-in families. Tests use it to populate a private
// registry.
func All() []lint.Family {
	return []lint.Family{
		frontmatterFamily(),
		whitespaceFamily(),
		namingFamily(),
		headingFamily(),
		scriptFamily(),
	}
}

// RegisterAll adds the built-in families to r.
func RegisterAll(r *lint.Registry) error {
	for _, f := range All() {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}
