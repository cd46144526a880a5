// Package credential resolves database and version-control credentials
// from an ordered chain of sources.
package credential

import (
	"errors"
	"fmt"
)

// Domain identifies what a credential pair authenticates against.
type Domain string

const (
	Database       Domain = "database"
	VersionControl Domain = "version-control"
)

// Field is one half of a credential pair.
type Field string

const (
	Principal Field = "username"
	Secret    Field = "password"
)

// Pair is a resolved principal/secret pair. It is held in memory only.
type Pair struct {
	Principal string
	Secret    string
	Domain    Domain
}

// String never includes the secret.
func (p Pair) String() string {
	return fmt.Sprintf("%s credentials for %q", p.Domain, p.Principal)
}

// Get returns the value of field.
func (p Pair) Get(field Field) string {
	if field == Secret {
		return p.Secret
	}

	return p.Principal
}

func (p *Pair) set(field Field, value string) {
	if field == Secret {
		p.Secret = value
	} else {
		p.Principal = value
	}
}

// CredentialError is returned when no source yields a required field.
type CredentialError struct {
	Domain Domain
	Field  Field
	Tried  []string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no %s %s found (tried: %v)", e.Domain, e.Field, e.Tried)
}

// ErrNotFound is returned by a Store when no value is saved.
var ErrNotFound = errors.New("credential not found")
