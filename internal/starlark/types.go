package starlark

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/vaultlint/pkg/document"
)

// DocumentValue converts a document and its execution metadata into the
// "doc" struct passed to scripts:
//
//	doc.path, doc.content, doc.lines
//	doc.frontmatter (dict), doc.has_frontmatter
//	doc.headings (list of struct(level, text, line))
//	doc.links (list of struct(target, text, line, embed, wiki))
//	doc.metadata (dict)
func DocumentValue(doc *document.Document, metadata map[string]any) (starlark.Value, error) {
	fm, err := GoToStarlark(map[string]any(doc.Frontmatter))
	if err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	meta, err := GoToStarlark(metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	headings := make([]starlark.Value, 0, len(doc.Headings))
	for _, h := range doc.Headings {
		headings = append(headings, starlarkstruct.FromStringDict(starlark.String("heading"), starlark.StringDict{
			"level": starlark.MakeInt(h.Level),
			"text":  starlark.String(h.Text),
			"line":  starlark.MakeInt(h.Line),
		}))
	}
	links := make([]starlark.Value, 0, len(doc.Links))
	for _, l := range doc.Links {
		links = append(links, starlarkstruct.FromStringDict(starlark.String("link"), starlark.StringDict{
			"target": starlark.String(l.Target),
			"text":   starlark.String(l.Text),
			"line":   starlark.MakeInt(l.Line),
			"embed":  starlark.Bool(l.Embed),
			"wiki":   starlark.Bool(l.Wiki),
		}))
	}

	return starlarkstruct.FromStringDict(starlark.String("doc"), starlark.StringDict{
		"path":            starlark.String(doc.Path),
		"content":         starlark.String(doc.Content),
		"frontmatter":     fm,
		"has_frontmatter": starlark.Bool(doc.HasFrontmatter),
		"headings":        starlark.NewList(headings),
		"links":           starlark.NewList(links),
		"metadata":        meta,
	}), nil
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, uint64, float64, bool, time.Time,
// []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case time.Time:
		return starlark.String(val.Format(time.RFC3339)), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		return sequenceToGo(val, "list")

	case starlark.Tuple:
		return sequenceToGo(val, "tuple")

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case *starlarkstruct.Struct:
		sd := starlark.StringDict{}
		val.ToStringDict(sd)
		result := make(map[string]any, len(sd))
		for k, fv := range sd {
			gv, err := ToGo(fv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			result[k] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

func sequenceToGo(seq starlark.Indexable, kind string) ([]any, error) {
	result := make([]any, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", kind, i, err)
		}
		result[i] = gv
	}
	return result, nil
}
