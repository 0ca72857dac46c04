package ruleloader

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/leapstack-labs/vaultlint/pkg/core"
	"github.com/leapstack-labs/vaultlint/pkg/lint"
)

// ParseDefinition decodes and validates a definition document:
//
//	[rule]     id, name, description, category (required strings)
//	[config]   path_allowlist, path_denylist, include_patterns,
//	           exclude_patterns (optional string arrays)
//	[settings] family specific keys
func ParseDefinition(data []byte) (lint.Definition, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return lint.Definition{}, fmt.Errorf("invalid TOML: %w", err)
	}

	ruleTable, ok := raw["rule"].(map[string]any)
	if !ok {
		return lint.Definition{}, errors.New("missing [rule] table")
	}
	var fields [4]string
	for i, key := range []string{"id", "name", "description", "category"} {
		v, present := ruleTable[key]
		if !present {
			return lint.Definition{}, fmt.Errorf("missing required field rule.%s", key)
		}
		s, isString := v.(string)
		if !isString {
			return lint.Definition{}, fmt.Errorf("rule.%s must be a string, got %T", key, v)
		}
		fields[i] = s
	}

	id, err := core.ParseRuleID(fields[0])
	if err != nil {
		return lint.Definition{}, err
	}

	settings := map[string]any{}
	if v, present := raw["settings"]; present {
		m, isTable := v.(map[string]any)
		if !isTable {
			return lint.Definition{}, fmt.Errorf("[settings] must be a table, got %T", v)
		}
		settings = m
	}

	cfg := lint.RuleConfig{
		CaseInsensitive: lint.GetBoolSetting(settings, "case_insensitive", false),
		Settings:        settings,
	}
	if v, present := raw["config"]; present {
		table, isTable := v.(map[string]any)
		if !isTable {
			return lint.Definition{}, fmt.Errorf("[config] must be a table, got %T", v)
		}
		targets := []struct {
			key string
			dst *[]string
		}{
			{"path_allowlist", &cfg.PathAllowlist},
			{"path_denylist", &cfg.PathDenylist},
			{"include_patterns", &cfg.IncludePatterns},
			{"exclude_patterns", &cfg.ExcludePatterns},
		}
		for _, t := range targets {
			val, present := table[t.key]
			if !present {
				continue
			}
			list, err := stringList(val)
			if err != nil {
				return lint.Definition{}, fmt.Errorf("config.%s %w", t.key, err)
			}
			*t.dst = list
		}
	}

	return lint.Definition{
		ID:          id,
		Name:        fields[1],
		Description: fields[2],
		Category:    fields[3],
		Config:      cfg.WithDefaults(),
	}, nil
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		if strs, isStrs := v.([]string); isStrs {
			return strs, nil
		}
		return nil, fmt.Errorf("must be an array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, isString := item.(string)
		if !isString {
			return nil, fmt.Errorf("element %d must be a string, got %T", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
