package credential

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Source yields individual credential fields. A source that has nothing for
// the field returns ok=false and no error.
type Source interface {
	Name() string
	Lookup(ctx context.Context, domain Domain, field Field) (value string, ok bool, err error)
}

// Resolver walks its sources in order, per field, and stops at the first
// one that yields a non-empty value.
type Resolver struct {
	log     logrus.FieldLogger
	sources []Source
}

// NewResolver creates a resolver over sources, highest precedence first.
func NewResolver(log logrus.FieldLogger, sources ...Source) *Resolver {
	return &Resolver{
		log:     log.WithField("component", "credentials"),
		sources: sources,
	}
}

// Resolve returns a complete pair for domain. Non-empty fields of explicit
// take precedence over every configured source.
func (r *Resolver) Resolve(ctx context.Context, domain Domain, explicit Pair) (Pair, error) {
	pair := Pair{Domain: domain}

	for _, field := range []Field{Principal, Secret} {
		if v := explicit.Get(field); v != "" {
			pair.set(field, v)
			r.logSource(domain, field, "explicit")

			continue
		}

		value, err := r.lookup(ctx, domain, field)
		if err != nil {
			return Pair{}, err
		}

		pair.set(field, value)
	}

	return pair, nil
}

func (r *Resolver) lookup(ctx context.Context, domain Domain, field Field) (string, error) {
	tried := make([]string, 0, len(r.sources)+1)
	tried = append(tried, "explicit")

	for _, src := range r.sources {
		tried = append(tried, src.Name())

		value, ok, err := src.Lookup(ctx, domain, field)
		if err != nil {
			return "", fmt.Errorf("looking up %s %s in %s: %w", domain, field, src.Name(), err)
		}

		if ok && value != "" {
			r.logSource(domain, field, src.Name())

			return value, nil
		}
	}

	return "", &CredentialError{Domain: domain, Field: field, Tried: tried}
}

func (r *Resolver) logSource(domain Domain, field Field, source string) {
	r.log.WithFields(logrus.Fields{
		"domain": domain,
		"field":  field,
		"source": source,
	}).Info("Resolved credential")
}
