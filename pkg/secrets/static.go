package secrets

import (
	"context"

	tgerr "github.com/tollgate/tollgate-core/pkg/errors"
)

// Static serves fixed secret material configured at construction. It never
// performs I/O and never fails for a configured key, which makes it the
// provider of choice for tests and for deployments whose keys arrive
// through the environment. Static material does not expire.
//
// Static is safe for concurrent use: the material map is copied at
// construction and never mutated afterwards.
type Static struct {
	material map[Key]Material
}

// Compile-time assertion that Static implements Provider.
var _ Provider = (*Static)(nil)

// NewStatic creates a Static provider serving the given material. The map
// is copied, so later mutation of the argument does not affect the
// provider.
func NewStatic(material map[Key]Material) *Static {
	copied := make(map[Key]Material, len(material))
	for k, m := range material {
		copied[k] = m
	}
	return &Static{material: copied}
}

// Current returns the configured material for key. Keys with no configured
// material produce a PROVIDER_003 error.
func (s *Static) Current(_ context.Context, key Key) (Material, error) {
	m, ok := s.material[key]
	if !ok {
		return nil, tgerr.Newf(tgerr.CodeProviderNotFound,
			"secrets: no material configured for key %q", key)
	}
	return m, nil
}
