package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-router/internal/domain/entity"
)

// rulesDocument is the layout of a standalone rules file:
//
//	rules:
//	  - id: rule1
//	    min_amount: 0
//	    max_amount: 500
//	    approver_roles: [manager]
//	    sequence: 1
type rulesDocument struct {
	Rules []entity.ApprovalRule `yaml:"rules"`
}

// LoadRulesFile reads an approval rule set from a YAML file
func LoadRulesFile(path string) ([]entity.ApprovalRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	rules, err := DecodeRules(f)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// DecodeRules decodes a YAML rule document; unknown fields are rejected
func DecodeRules(r io.Reader) ([]entity.ApprovalRule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc rulesDocument
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty rules document")
		}
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules document defines no rules")
	}
	return doc.Rules, nil
}

// EncodeRules writes rules in the layout DecodeRules reads
func EncodeRules(w io.Writer, rules []entity.ApprovalRule) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rulesDocument{Rules: rules}); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return enc.Close()
}
