// Package keyspace encodes and decodes composite ledger keys.
//
// The wire format matches Hyperledger Fabric composite keys: a leading U+0000,
// the namespace, then every attribute, each terminated by U+0000. Keys produced
// here can therefore be handed straight to a chaincode stub and scanned with
// partial-key range queries.
package keyspace

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// Separator delimits the namespace and every attribute.
	Separator = "\x00"
	// maxUnicodeRune is reserved by Fabric as the range-end sentinel.
	maxUnicodeRune = utf8.MaxRune
)

var (
	// ErrInvalidAttribute reports a namespace or attribute that cannot be encoded.
	ErrInvalidAttribute = errors.New("keyspace: invalid attribute")
	// ErrMalformedKey reports a key that was not produced by Encode.
	ErrMalformedKey = errors.New("keyspace: malformed key")
)

// Encode builds the composite key for namespace and the full attribute tuple.
func Encode(namespace string, attributes ...string) (string, error) {
	if err := validate(namespace, attributes); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(Separator)
	b.WriteString(namespace)
	b.WriteString(Separator)
	for _, attr := range attributes {
		b.WriteString(attr)
		b.WriteString(Separator)
	}
	return b.String(), nil
}

// MustEncode is Encode for constant inputs known to be valid; it panics otherwise.
func MustEncode(namespace string, attributes ...string) string {
	key, err := Encode(namespace, attributes...)
	if err != nil {
		panic(err)
	}
	return key
}

// Prefix returns the key prefix shared by every key in namespace whose leading
// attributes equal partial. Attributes are matched whole, so a prefix built from
// "C1" never matches a key whose first attribute is "C10".
func Prefix(namespace string, partial ...string) (string, error) {
	return Encode(namespace, partial...)
}

// Decode splits a composite key into its namespace and attributes.
func Decode(key string) (string, []string, error) {
	if len(key) < 2 || !strings.HasPrefix(key, Separator) || !strings.HasSuffix(key, Separator) {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	parts := strings.Split(key[1:len(key)-1], Separator)
	if parts[0] == "" {
		return "", nil, fmt.Errorf("%w: empty namespace", ErrMalformedKey)
	}
	return parts[0], parts[1:], nil
}

// HasPrefix reports whether key falls inside the range addressed by prefix.
func HasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}

func validate(namespace string, attributes []string) error {
	if namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidAttribute)
	}
	if err := validateComponent(namespace); err != nil {
		return fmt.Errorf("namespace %q: %w", namespace, err)
	}
	for i, attr := range attributes {
		if err := validateComponent(attr); err != nil {
			return fmt.Errorf("attribute %d: %w", i, err)
		}
	}
	return nil
}

func validateComponent(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid utf-8", ErrInvalidAttribute)
	}
	for _, r := range s {
		if r == 0 || r == maxUnicodeRune {
			return fmt.Errorf("%w: reserved rune %U", ErrInvalidAttribute, r)
		}
	}
	return nil
}
