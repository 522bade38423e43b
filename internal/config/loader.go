package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// IncludeKey lists files merged underneath the file that names them.
const IncludeKey = "$include"

// LoadRaw reads a configuration file into one merged map. ${VAR} references
// are expanded before parsing. Included files are merged first, in order, and
// the including file overrides them key by key:
//
//	$include: [base.yaml, secrets.json5]
//	llm:
//	  default_provider: ${OPSASSIST_LLM_PROVIDER:-anthropic}
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is required")
	}
	var chain includeChain
	return chain.load(path)
}

// includeChain is the stack of files currently being loaded.
type includeChain []string

func (c *includeChain) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for _, open := range *c {
		if open == abs {
			return nil, fmt.Errorf("config include cycle: %s -> %s", strings.Join(*c, " -> "), abs)
		}
	}
	*c = append(*c, abs)
	defer func() { *c = (*c)[:len(*c)-1] }()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument([]byte(expandEnv(string(data))), filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	includes, err := takeIncludes(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := c.load(inc)
		if err != nil {
			return nil, err
		}
		mergeInto(merged, sub)
	}
	mergeInto(merged, doc)
	return merged, nil
}

// parseDocument decodes JSON/JSON5 by extension and everything else as a
// single YAML document. An empty file is an empty map.
func parseDocument(data []byte, ext string) (map[string]any, error) {
	doc := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json", ".json5":
		if len(bytes.TrimSpace(data)) == 0 {
			return doc, nil
		}
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, err
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			return nil, errors.New("config must be a single YAML document")
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// takeIncludes removes the include directive from doc and returns its paths.
func takeIncludes(doc map[string]any) ([]string, error) {
	val, ok := doc[IncludeKey]
	delete(doc, IncludeKey)
	if !ok || val == nil {
		return nil, nil
	}
	if one, ok := val.(string); ok {
		val = []any{one}
	}
	list, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a path or a list of paths", IncludeKey)
	}
	paths := make([]string, 0, len(list))
	for _, item := range list {
		p, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings, got %T", IncludeKey, item)
		}
		if strings.TrimSpace(p) != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// mergeInto overlays src onto dst. Nested sections merge; any other value,
// lists included, replaces what dst held.
func mergeInto(dst, src map[string]any) {
	for key, val := range src {
		section, isSection := val.(map[string]any)
		existing, hasSection := dst[key].(map[string]any)
		if isSection && hasSection {
			mergeInto(existing, section)
			continue
		}
		dst[key] = val
	}
}

// decodeStrict turns the merged map into a Config, rejecting unknown keys so
// a misspelled setting fails the load.
func decodeStrict(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
