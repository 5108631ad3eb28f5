package cachepool

import (
	"errors"

	"github.com/unkn0wn-root/cachepool/driver"
)

// ValidationError reports a rejected key, tag or namespace argument.
// errors.Is matches it against ErrInvalidKey, ErrInvalidTag, ErrInvalidNamespace
// or ErrReservedKey.
type ValidationError = driver.ValidationError

// ConfigError reports an invalid composition at construction time.
type ConfigError = driver.ConfigError

var (
	ErrInvalidKey       = driver.ErrInvalidKey
	ErrInvalidTag       = driver.ErrInvalidTag
	ErrInvalidNamespace = driver.ErrInvalidNamespace
	ErrReservedKey      = driver.ErrReservedKey
	ErrConfig           = driver.ErrConfig

	// ErrTaggingDisabled is returned by tag operations on a pool built without Options.Tagging.
	ErrTaggingDisabled = errors.New("cachepool: tagging is disabled")
)
