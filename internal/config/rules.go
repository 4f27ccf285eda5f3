package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"doorwatch/internal/notifications/templates"
	"doorwatch/internal/types"
)

//go:embed rules.default.yaml
var defaultRules []byte

// Rules is the classification and notification text set. It is fixed at
// startup.
type Rules struct {
	// Whitelist is the ordered list of benign-line patterns.
	Whitelist []string `yaml:"whitelist" validate:"required,min=1,dive,required"`

	// Templates holds every transition kind; kinds absent from the file
	// carry the stock text.
	Templates map[types.TransitionKind]templates.Spec `yaml:"templates"`
}

// LoadRules reads the rules file at path, or the embedded defaults when path
// is empty. Every failure is a ConfigError of type ErrRulesInvalid.
func LoadRules(path string) (*Rules, error) {
	data := defaultRules
	source := "embedded defaults"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, rulesError(path, "cannot read rules file", err)
		}
		data = b
		source = path
	}
	return parseRules(data, source)
}

func parseRules(data []byte, source string) (*Rules, error) {
	var rules Rules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, rulesError(source, "malformed YAML", err)
	}

	if err := validator.New().Struct(rules); err != nil {
		return nil, rulesError(source, "whitelist must list at least one non-empty pattern", err)
	}

	for i, p := range rules.Whitelist {
		if _, err := regexp.Compile(p); err != nil {
			return nil, rulesError(source, fmt.Sprintf("whitelist pattern %d does not compile", i), err)
		}
	}

	merged := templates.Defaults()
	for kind, spec := range rules.Templates {
		if _, ok := merged[kind]; !ok {
			return nil, rulesError(source, fmt.Sprintf("unknown template kind %q", kind), nil)
		}
		merged[kind] = spec
	}
	rules.Templates = merged

	if err := checkTemplates(merged); err != nil {
		return nil, rulesError(source, "invalid notification template", err)
	}

	return &rules, nil
}

// checkTemplates parses every template and renders it once against a sample
// event, so a reference to an unknown field fails at startup rather than on
// the first transition.
func checkTemplates(specs map[types.TransitionKind]templates.Spec) error {
	r, err := templates.NewRenderer(specs)
	if err != nil {
		return err
	}
	sample := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, kind := range types.AllTransitionKinds {
		_, err := r.Render(types.TransitionEvent{
			ID:         "rules-check",
			Kind:       kind,
			OccurredAt: sample,
			Context: types.TransitionContext{
				Line:      "sample",
				RecentLog: []string{"sample"},
				Silence:   time.Minute,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func rulesError(source, msg string, err error) *ConfigError {
	return &ConfigError{
		Type:    ErrRulesInvalid,
		Message: fmt.Sprintf("%s: %s", source, msg),
		Err:     err,
	}
}
