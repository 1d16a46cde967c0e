// Package seed loads case-type definitions from YAML seed files.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"voicelegal-backend/models"

	"gopkg.in/yaml.v3"
)

//go:embed case_types.yaml
var defaultCaseTypes []byte

type file struct {
	CaseTypes []caseType `yaml:"case_types"`
}

type caseType struct {
	Name                string     `yaml:"name"`
	Keywords            []string   `yaml:"keywords"`
	ConfidenceThreshold float64    `yaml:"confidence_threshold"`
	Priority            int        `yaml:"priority"`
	Inactive            bool       `yaml:"inactive"`
	Questions           []question `yaml:"questions"`
}

type question struct {
	Question        string                 `yaml:"question"`
	FieldName       string                 `yaml:"field_name"`
	FieldType       string                 `yaml:"field_type"`
	Required        bool                   `yaml:"required"`
	Order           int                    `yaml:"order"`
	ValidationRules models.ValidationRules `yaml:"validation_rules"`
	HelpText        string                 `yaml:"help_text"`
}

// Default returns the built-in case types
func Default() ([]models.CaseTypeDefinition, error) {
	return Parse(defaultCaseTypes)
}

// LoadFile reads case types from a YAML file
func LoadFile(path string) ([]models.CaseTypeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML seed data into case-type definitions
func Parse(data []byte) ([]models.CaseTypeDefinition, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}

	defs := make([]models.CaseTypeDefinition, 0, len(f.CaseTypes))
	for _, ct := range f.CaseTypes {
		if ct.Name == "" {
			return nil, errors.New("seed case type without a name")
		}
		def := models.CaseTypeDefinition{
			Name:                ct.Name,
			Keywords:            ct.Keywords,
			ConfidenceThreshold: ct.ConfidenceThreshold,
			Priority:            ct.Priority,
			IsActive:            !ct.Inactive,
		}
		for _, q := range ct.Questions {
			ft, ok := models.ParseFieldType(q.FieldType)
			if !ok {
				return nil, fmt.Errorf("case type %q: unknown field type %q", ct.Name, q.FieldType)
			}
			def.Questions = append(def.Questions, models.QuestionDefinition{
				Question:        q.Question,
				FieldName:       q.FieldName,
				FieldType:       ft,
				IsRequired:      q.Required,
				Order:           q.Order,
				ValidationRules: q.ValidationRules,
				HelpText:        q.HelpText,
			})
		}
		defs = append(defs, def)
	}
	return defs, nil
}
