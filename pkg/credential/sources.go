package credential

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// EnvNames maps each domain to its principal and secret variable names.
var EnvNames = map[Domain][2]string{
	Database:       {"DB_USER", "DB_PASS"},
	VersionControl: {"GIT_USER", "GIT_PASS"},
}

// EnvSource reads credentials from the process environment.
type EnvSource struct {
	lookupEnv func(string) (string, bool)
}

var _ Source = (*EnvSource)(nil)

// NewEnvSource creates a source backed by os.LookupEnv.
func NewEnvSource() *EnvSource {
	return &EnvSource{lookupEnv: os.LookupEnv}
}

// Name implements Source.
func (s *EnvSource) Name() string {
	return "environment"
}

// Lookup implements Source.
func (s *EnvSource) Lookup(_ context.Context, domain Domain, field Field) (string, bool, error) {
	names, ok := EnvNames[domain]
	if !ok {
		return "", false, nil
	}

	name := names[0]
	if field == Secret {
		name = names[1]
	}

	value, ok := s.lookupEnv(name)

	return value, ok, nil
}

// StaticSource serves fixed values, e.g. credentials written in the config file.
type StaticSource struct {
	name   string
	values map[Domain]Pair
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a named source over fixed pairs.
func NewStaticSource(name string, values map[Domain]Pair) *StaticSource {
	return &StaticSource{name: name, values: values}
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.name
}

// Lookup implements Source.
func (s *StaticSource) Lookup(_ context.Context, domain Domain, field Field) (string, bool, error) {
	pair, ok := s.values[domain]
	if !ok {
		return "", false, nil
	}

	value := pair.Get(field)

	return value, value != "", nil
}

// StoreSource reads from a secure credential store. On a miss it prompts
// and persists the answer back to the store.
type StoreSource struct {
	log      logrus.FieldLogger
	store    Store
	prompter Prompter
	services map[Domain]string
}

var _ Source = (*StoreSource)(nil)

// NewStoreSource creates a store-backed source. Domains without a service
// name in services are skipped.
func NewStoreSource(
	log logrus.FieldLogger,
	store Store,
	prompter Prompter,
	services map[Domain]string,
) *StoreSource {
	return &StoreSource{
		log:      log.WithField("component", "credential-store"),
		store:    store,
		prompter: prompter,
		services: services,
	}
}

// Name implements Source.
func (s *StoreSource) Name() string {
	return "credential-store"
}

// Lookup implements Source.
func (s *StoreSource) Lookup(_ context.Context, domain Domain, field Field) (string, bool, error) {
	service := s.services[domain]
	if service == "" {
		return "", false, nil
	}

	value, err := s.store.Get(service, string(field))
	if err == nil && value != "" {
		return value, true, nil
	}

	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.WithError(err).WithField("service", service).Warn("Credential store unavailable")

		return "", false, nil
	}

	if s.prompter == nil || !s.prompter.Interactive() {
		return "", false, nil
	}

	value, err = s.prompter.Prompt(promptLabel(domain, field, service), field == Secret)
	if err != nil {
		return "", false, fmt.Errorf("prompting: %w", err)
	}

	if value == "" {
		return "", false, nil
	}

	if err := s.store.Set(service, string(field), value); err != nil {
		s.log.WithError(err).WithField("service", service).Warn("Failed to persist credential")
	}

	return value, true, nil
}

// PromptSource asks interactively and never persists.
type PromptSource struct {
	prompter Prompter
}

var _ Source = (*PromptSource)(nil)

// NewPromptSource creates a prompt-only source.
func NewPromptSource(prompter Prompter) *PromptSource {
	return &PromptSource{prompter: prompter}
}

// Name implements Source.
func (s *PromptSource) Name() string {
	return "prompt"
}

// Lookup implements Source.
func (s *PromptSource) Lookup(_ context.Context, domain Domain, field Field) (string, bool, error) {
	if s.prompter == nil || !s.prompter.Interactive() {
		return "", false, nil
	}

	value, err := s.prompter.Prompt(promptLabel(domain, field, ""), field == Secret)
	if err != nil {
		return "", false, fmt.Errorf("prompting: %w", err)
	}

	return value, value != "", nil
}

func promptLabel(domain Domain, field Field, service string) string {
	if service != "" {
		return fmt.Sprintf("%s %s (%s): ", domain, field, service)
	}

	return fmt.Sprintf("%s %s: ", domain, field)
}
