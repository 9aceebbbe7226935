package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternDocument — формат файла словаря угроз, по образу документа политик.
type PatternDocument struct {
	Version     string          `yaml:"version"`
	Description string          `yaml:"description"`
	Patterns    []ThreatPattern `yaml:"patterns"`
}

// LoadPatternFile читает словарь угроз и собирает из него санитайзер.
// Валидация — всё или ничего (см. NewSanitizer).
func LoadPatternFile(path string) (*PatternDocument, *Sanitizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("pattern loader: read %s: %w", path, err)
	}

	var doc PatternDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("pattern loader: parse %s: %w", path, err)
	}

	s, err := NewSanitizer(doc.Patterns)
	if err != nil {
		return nil, nil, err
	}
	return &doc, s, nil
}
