package domain

import "go.trai.ch/zerr"

const (
	// TokenShape tags references to geometry objects.
	TokenShape = "occ-shape"
	// TokenEntity tags references to non-geometry kernel handles.
	TokenEntity = "occ-entity"
)

// Token is the serializable stand-in for a live kernel object.
type Token struct {
	Type string      `json:"type"`
	Hash Fingerprint `json:"hash"`
}

// NewToken builds the token for an object of the given kind.
func NewToken(kind Kind, hash Fingerprint) Token {
	if kind == KindEntity {
		return Token{Type: TokenEntity, Hash: hash}
	}
	return Token{Type: TokenShape, Hash: hash}
}

// Kind returns the object kind the token refers to.
func (t Token) Kind() Kind {
	if t.Type == TokenEntity {
		return KindEntity
	}
	return KindShape
}

// IsTokenType reports whether s is one of the known reference tags.
func IsTokenType(s string) bool {
	return s == TokenShape || s == TokenEntity
}

// TokenFromValue recognizes a reference token in a decoded value.
// It returns ok=false when v is not a token at all and an error when v looks
// like a token but carries an unusable hash.
func TokenFromValue(v any) (Token, bool, error) {
	switch t := v.(type) {
	case Token:
		return t, IsTokenType(t.Type), nil
	case *Token:
		if t == nil {
			return Token{}, false, nil
		}
		return *t, IsTokenType(t.Type), nil
	case map[string]any:
		typ, ok := t["type"].(string)
		if !ok || !IsTokenType(typ) {
			return Token{}, false, nil
		}
		raw, ok := t["hash"]
		if !ok {
			return Token{}, false, nil
		}
		hash, err := ParseFingerprint(raw)
		if err != nil {
			return Token{}, true, zerr.With(err, "type", typ)
		}
		return Token{Type: typ, Hash: hash}, true, nil
	default:
		return Token{}, false, nil
	}
}
