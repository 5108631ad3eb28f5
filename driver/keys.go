package driver

import (
	"strings"
)

// ReservedChars may not appear in keys, tags or namespaces. Physical keys use
// them as separators, so a user key can never collide with a rewritten one.
const ReservedChars = `{}()/\@:`

// MaxKeyLen bounds keys, tags and namespaces (bytes).
const MaxKeyLen = 1024

// Reserved internal keys. User keys matching these are rejected at the boundary.
const (
	namespaceVersionPrefix = "NAMESPACE_VERSION["
	tagKeysPrefix          = "TAG_KEYS["
	keyTagsPrefix          = "KEY_TAGS["

	TagOrphansKey = "TAG_ORPHANS"
	KeyOrphansKey = "KEY_ORPHANS"
)

// NamespaceVersionKey is where the version counter of ns is persisted.
func NamespaceVersionKey(ns string) string { return namespaceVersionPrefix + ns + "]" }

// TagKeysKey holds the key set of tag.
func TagKeysKey(tag string) string { return tagKeysPrefix + tag + "]" }

// KeyTagsKey holds the tag set of key.
func KeyTagsKey(key string) string { return keyTagsPrefix + key + "]" }

// IsReserved reports whether key collides with internal bookkeeping keys.
func IsReserved(key string) bool {
	if key == TagOrphansKey || key == KeyOrphansKey {
		return true
	}
	return strings.HasPrefix(key, namespaceVersionPrefix) ||
		strings.HasPrefix(key, tagKeysPrefix) ||
		strings.HasPrefix(key, keyTagsPrefix)
}

// ValidateKey checks a user-supplied key.
func ValidateKey(key string) error {
	if err := validate(ErrInvalidKey, key); err != nil {
		return err
	}
	if IsReserved(key) {
		return &ValidationError{Kind: ErrReservedKey, Value: key, Reason: "collides with internal bookkeeping keys"}
	}
	return nil
}

// ValidateKeys checks every key, stopping at the first failure.
func ValidateKeys(keys []string) error {
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTag checks a tag label.
func ValidateTag(tag string) error { return validate(ErrInvalidTag, tag) }

// ValidateTags checks every tag, stopping at the first failure.
func ValidateTags(tags []string) error {
	for _, t := range tags {
		if err := ValidateTag(t); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNamespace checks a namespace. The empty namespace is valid and disables namespacing.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	return validate(ErrInvalidNamespace, ns)
}

func validate(kind error, s string) error {
	switch {
	case s == "":
		return &ValidationError{Kind: kind, Value: s, Reason: "must not be empty"}
	case len(s) > MaxKeyLen:
		return &ValidationError{Kind: kind, Value: s[:32] + "...", Reason: "too long"}
	case strings.ContainsAny(s, ReservedChars):
		return &ValidationError{Kind: kind, Value: s, Reason: "contains one of " + ReservedChars}
	}
	return nil
}
