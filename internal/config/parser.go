package config

import "strings"

// Parse reads JSONC configuration content on top of base.
func Parse(content string, base Config) (Config, []Warning, error) {
	return parse(content, base, Overrides{})
}

func parse(content string, base Config, overrides Overrides) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		overrides.applyTo(&base)
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}
	return parseJSONC(content, base, overrides)
}
