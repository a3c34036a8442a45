// Package policyfile loads policy sets and evaluation contexts from YAML
// or JSON-with-comments files. It backs the arbiter CLI and the Forge
// extension's policy seeding.
package policyfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/xraph/arbiter"
	"github.com/xraph/arbiter/policy"
)

// Format is a policy file encoding.
type Format string

const (
	// FormatYAML is YAML 1.2.
	FormatYAML Format = "yaml"

	// FormatJSON is JSON, optionally with comments and trailing commas.
	FormatJSON Format = "json"
)

// ErrUnknownFormat is returned for file extensions other than .yaml,
// .yml, .json and .jsonc.
var ErrUnknownFormat = errors.New("policyfile: unknown file format")

// Document is the top-level shape of a policy file.
type Document struct {
	Policies []Entry `json:"policies"`
}

// Entry is one policy as written in a file. Active defaults to true.
type Entry struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description,omitempty"`
	Effect      policy.Effect                `json:"effect"`
	Priority    int                          `json:"priority,omitempty"`
	Active      *bool                        `json:"active,omitempty"`
	Subject     *policy.SubjectCondition     `json:"subject,omitempty"`
	Resource    policy.ResourceCondition     `json:"resource"`
	Action      policy.ActionCondition       `json:"action"`
	Environment *policy.EnvironmentCondition `json:"environment,omitempty"`
	Metadata    map[string]any               `json:"metadata,omitempty"`
}

// Policy converts the entry to a policy. ID, tenant and timestamps are
// left for the engine to assign.
func (e Entry) Policy() *policy.Policy {
	active := e.Active == nil || *e.Active
	return &policy.Policy{
		Name:        e.Name,
		Description: e.Description,
		Effect:      e.Effect,
		Priority:    e.Priority,
		IsActive:    active,
		Subject:     e.Subject,
		Resource:    e.Resource,
		Action:      e.Action,
		Environment: e.Environment,
		Metadata:    e.Metadata,
	}
}

// Request is the file shape of an evaluation context. Environment is a
// flat attribute map; omit it to evaluate without an environment.
type Request struct {
	Subject     arbiter.Subject  `json:"subject"`
	Resource    arbiter.Resource `json:"resource"`
	Action      string           `json:"action"`
	Environment map[string]any   `json:"environment,omitempty"`
}

// EvaluationContext converts the request for the evaluator.
func (r Request) EvaluationContext() *arbiter.EvaluationContext {
	ec := &arbiter.EvaluationContext{
		Subject:  r.Subject,
		Resource: r.Resource,
		Action:   r.Action,
	}
	if r.Environment != nil {
		ec.Environment = &arbiter.Environment{Attributes: r.Environment}
	}
	return ec
}

// FormatOf infers the format from a file name.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads a policy file and returns its policies, validated, in file
// order.
func Load(path string) ([]*policy.Policy, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyfile: read %s: %w", path, err)
	}
	return Parse(data, format)
}

// Parse decodes and validates a policy document. Every invalid policy is
// reported, joined into one error.
func Parse(data []byte, format Format) ([]*policy.Policy, error) {
	var doc Document
	if err := decode(data, format, &doc); err != nil {
		return nil, err
	}

	policies := make([]*policy.Policy, 0, len(doc.Policies))
	seen := make(map[string]bool, len(doc.Policies))
	var errs []error
	for i, e := range doc.Policies {
		p := e.Policy()
		if err := policy.Validate(p); err != nil {
			errs = append(errs, fmt.Errorf("policies[%d]: %w", i, err))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("policies[%d]: %w: %q", i, policy.ErrDuplicateName, p.Name))
			continue
		}
		seen[p.Name] = true
		policies = append(policies, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return policies, nil
}

// LoadRequest reads an evaluation context file.
func LoadRequest(path string) (*arbiter.EvaluationContext, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyfile: read %s: %w", path, err)
	}
	return ParseRequest(data, format)
}

// ParseRequest decodes an evaluation context.
func ParseRequest(data []byte, format Format) (*arbiter.EvaluationContext, error) {
	var r Request
	if err := decode(data, format, &r); err != nil {
		return nil, err
	}
	return r.EvaluationContext(), nil
}

// decode normalizes both formats to JSON so that one set of struct tags
// serves YAML and JSON alike.
func decode(data []byte, format Format, v any) error {
	var raw []byte
	switch format {
	case FormatJSON:
		raw = jsonc.ToJSON(data)
	case FormatYAML:
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("policyfile: parse yaml: %w", err)
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("policyfile: convert yaml: %w", err)
		}
		raw = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("policyfile: decode: %w", err)
	}
	return nil
}
