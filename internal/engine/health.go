package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/leapstack-labs/vaultlint/internal/ruleloader"
)

// HealthCheck is the outcome of one health check.
type HealthCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Warning bool   `json:"warning,omitempty"`
	Details string `json:"details"`
}

// HealthReport summarizes ValidateEngineHealth. Issues lists the failed
// checks and Warnings the degraded ones; Healthy is false when Issues is
// not empty.
type HealthReport struct {
	Healthy  bool          `json:"healthy"`
	Issues   []string      `json:"issues"`
	Warnings []string      `json:"warnings"`
	Checks   []HealthCheck `json:"checks"`
}

func (h *HealthReport) add(name string, ok bool, format string, args ...any) {
	c := HealthCheck{Name: name, OK: ok, Details: fmt.Sprintf(format, args...)}
	h.Checks = append(h.Checks, c)
	if !ok {
		h.Healthy = false
		h.Issues = append(h.Issues, name+": "+c.Details)
	}
}

// warn records a check that passed in a degraded state.
func (h *HealthReport) warn(name, format string, args ...any) {
	c := HealthCheck{Name: name, OK: true, Warning: true, Details: fmt.Sprintf(format, args...)}
	h.Checks = append(h.Checks, c)
	h.Warnings = append(h.Warnings, name+": "+c.Details)
}

// ValidateEngineHealth checks that the engine can run: the configuration
// is valid, the active profile's rules load without conflicts, memory is
// below the hard limit and the engine is open.
func (e *Engine) ValidateEngineHealth() HealthReport {
	h := HealthReport{Healthy: true, Issues: []string{}, Warnings: []string{}}

	e.mu.Lock()
	cfg, closed := e.cfg, e.closed
	c, mem, pool := e.cache, e.memory, e.pool
	e.mu.Unlock()

	h.add("engine", !closed, "open=%t workers=%d", !closed, pool.MaxWorkers())

	if err := cfg.Validate(); err != nil {
		h.add("config", false, "%v", err)
	} else {
		src := cfg.File
		if src == "" {
			src = "built-in defaults"
		}
		h.add("config", true, "loaded from %s", src)
	}

	if rulesPath, err := e.RulesPath(""); err != nil {
		h.add("rules", false, "%v", err)
	} else if _, err := os.Stat(filepath.Join(rulesPath, ruleloader.EnabledDir)); err != nil {
		h.add("rules", false, "no enabled rules directory under %s", rulesPath)
	} else if rules, err := e.loader.LoadRules(rulesPath); err != nil {
		h.add("rules", false, "%v", err)
	} else if res := e.ValidateRuleConflicts(rules); !res.Valid {
		h.add("rules", false, "%d rules, %d conflict group(s)", len(rules), len(res.Conflicts))
	} else if len(res.Warnings) > 0 {
		h.Checks = append(h.Checks, HealthCheck{
			Name:    "rules",
			OK:      true,
			Warning: true,
			Details: fmt.Sprintf("%d rules, %d warning(s)", len(rules), len(res.Warnings)),
		})
		for _, w := range res.Warnings {
			h.Warnings = append(h.Warnings, "rules: "+w.Message)
		}
	} else {
		h.add("rules", true, "%d rules", len(rules))
	}

	heap := mem.Sample()
	limits := mem.Config()
	switch {
	case heap >= limits.HardLimit:
		h.add("memory", false, "heap %s at or above hard limit %s", humanize.IBytes(heap), humanize.IBytes(limits.HardLimit))
	case heap >= limits.SoftLimit:
		h.warn("memory", "heap %s above soft limit %s", humanize.IBytes(heap), humanize.IBytes(limits.SoftLimit))
	default:
		h.add("memory", true, "heap %s, no pressure", humanize.IBytes(heap))
	}

	s := c.Stats()
	h.add("cache", true, "%d entries, %s, hit rate %.0f%%", s.Entries, humanize.IBytes(uint64(max(s.Bytes, 0))), s.HitRate*100)
	return h
}
