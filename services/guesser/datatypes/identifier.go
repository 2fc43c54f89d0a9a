// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"strings"
)

// Identifier is the bitstring encoding of a FeatureVector, one '1' or '0'
// per field in declaration order. Two interactions with equal identifiers
// produce the same test file.
type Identifier string

// IdentifierLength is the number of characters in a valid Identifier.
const IdentifierLength = len(FlagNames)

// Identifier encodes the vector.
func (v FeatureVector) Identifier() Identifier {
	var b strings.Builder
	b.Grow(IdentifierLength)
	for _, value := range v.values() {
		if value {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return Identifier(b.String())
}

// IsZero reports whether no flag is set, meaning there is nothing worth
// generating.
func (id Identifier) IsZero() bool {
	return !strings.ContainsRune(string(id), '1')
}

func (id Identifier) String() string {
	return string(id)
}

// DecodeIdentifier splits an identifier back into named flags. It checks
// only the shape of the string; the vector invariants are not enforced.
func DecodeIdentifier(s string) ([]Flag, error) {
	if len(s) != IdentifierLength {
		return nil, fmt.Errorf("identifier %q: want %d characters, got %d", s, IdentifierLength, len(s))
	}
	flags := make([]Flag, IdentifierLength)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0', '1':
			flags[i] = Flag{Name: FlagNames[i], Value: s[i] == '1'}
		default:
			return nil, fmt.Errorf("identifier %q: invalid character %q at position %d", s, s[i], i)
		}
	}
	return flags, nil
}
