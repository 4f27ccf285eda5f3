package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig and LoadRules. Any ConfigError is
// fatal at startup.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

const (
	// ssmParamSuffix marks a variable whose value is the SSM path of the
	// secret for the variable named without the suffix.
	ssmParamSuffix = "_SSM_PARAM"

	// localEnv is the APP_ENV value that bypasses SSM resolution.
	localEnv = "local"

	ssmResolveTimeout = 30 * time.Second
)

// loaderDeps are the environment accessors, injectable for tests.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the doorwatch configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. If APP_ENV != "local", resolves _SSM_PARAM pointers via the provider
//     and injects the resolved values as environment variables.
//  4. Processes envconfig tags to populate the Config struct.
//  5. Populates Config.Build from linker-injected variables.
//  6. Validates the Config struct.
//
// The provider may be nil for local development.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load()

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := newValidator().Struct(cfg); err != nil {
		return nil, validationError(err)
	}

	return &cfg, nil
}

// newValidator reports fields by their environment variable name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// validationError classifies validator failures. When every failure is a
// missing required value the error is ErrMissingEnv, otherwise ErrValidation.
func validationError(err error) *ConfigError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	names := make([]string, 0, len(verrs))
	allMissing := true
	for _, fe := range verrs {
		names = append(names, fe.Field())
		if fe.Tag() != "required" {
			allMissing = false
		}
	}

	if allMissing {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "required environment variables not set: " + strings.Join(names, ", "),
			Err:     err,
		}
	}
	return &ConfigError{
		Type:    ErrValidation,
		Message: "invalid values for: " + strings.Join(names, ", "),
		Err:     err,
	}
}

// resolveSSMParams injects secrets referenced by _SSM_PARAM pointers. For
// SMTP_PASSWORD_SSM_PARAM=/prod/doorwatch/smtp/password the value of that
// parameter becomes SMTP_PASSWORD. A target that is already set in the
// environment wins over SSM.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pathToTarget := make(map[string]string)
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || path == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		pathToTarget[path] = target
	}

	if len(pathToTarget) == 0 {
		return nil
	}

	paths := make([]string, 0, len(pathToTarget))
	for path := range pathToTarget {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", targetsOf(paths, pathToTarget)),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmResolveTimeout)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		target := pathToTarget[path]
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", targetsOf(missing, pathToTarget)),
		}
	}

	return nil
}

func targetsOf(paths []string, pathToTarget map[string]string) string {
	targets := make([]string, len(paths))
	for i, p := range paths {
		targets[i] = pathToTarget[p]
	}
	return strings.Join(targets, ", ")
}
