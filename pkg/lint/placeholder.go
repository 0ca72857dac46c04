package lint

import (
	"context"
	"sync"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// Placeholder is the inert rule used for majorIds with no registered family.
type Placeholder struct {
	Base
	warnOnce *sync.Once
}

// NewPlaceholder creates a placeholder for def.
func NewPlaceholder(def Definition) *Placeholder {
	return &Placeholder{Base: NewBase(def), warnOnce: &sync.Once{}}
}

// Lint logs a warning the first time it runs and reports nothing.
func (p *Placeholder) Lint(_ context.Context, ec *ExecutionContext) ([]core.Issue, error) {
	p.warnOnce.Do(func() {
		ec.Log().Warn("rule has no implementation, skipping",
			"rule_id", p.Def.ID.Full,
			"major_id", p.Def.ID.Major,
			"source", p.Def.SourcePath)
	})
	return nil, nil
}

// Fix reports nothing.
func (p *Placeholder) Fix(context.Context, *ExecutionContext, []core.Issue) ([]core.Fix, error) {
	return nil, nil
}
