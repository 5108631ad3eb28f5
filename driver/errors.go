package driver

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey       = errors.New("cachepool: invalid key")
	ErrInvalidTag       = errors.New("cachepool: invalid tag")
	ErrInvalidNamespace = errors.New("cachepool: invalid namespace")
	ErrReservedKey      = errors.New("cachepool: reserved key")
	ErrConfig           = errors.New("cachepool: configuration error")
)

// ValidationError reports a rejected key, tag or namespace. It is raised
// before any I/O and is never retried.
type ValidationError struct {
	Kind   error // ErrInvalidKey, ErrInvalidTag, ErrInvalidNamespace or ErrReservedKey
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v %q: %s", e.Kind, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// ConfigError reports an invalid composition detected at construction time,
// such as chaining a driver twice or a chain containing itself.
type ConfigError struct {
	Component string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cachepool: %s: %s", e.Component, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }
