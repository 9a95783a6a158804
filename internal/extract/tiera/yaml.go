package tiera

import "gopkg.in/yaml.v3"

// parseYAMLShape decodes content into a generic map so shape matchers (e.g.
// looksLikeCompose) can cheaply inspect top-level keys before committing to
// a type-specific matcher. JSON is valid YAML, so this also services the
// "json" sub-structure language.
func parseYAMLShape(content string) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
