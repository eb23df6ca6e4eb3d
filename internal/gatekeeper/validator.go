// Package gatekeeper is the whitelist schema that every public profile
// mutation must pass through before anything is persisted.
//
// The contract is whitelist-only: the input is an arbitrary key-value object
// (decoded JSON body, CLI-generated file, direct mutation arguments) and the
// output contains exactly the fields named in the public schema; nothing
// else survives, regardless of what the sensitive-field detector reports.
// Validation never silently drops a bad value and continues; every failing
// field is reported with the constraint it violated.
package gatekeeper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

const (
	maxNameLen        = 100
	maxOwnerLen       = 100
	maxDescriptionLen = 500

	defaultVersion = "1.0.0"
)

// modelRefRE matches the provider/model shape, e.g. "openai/gpt-4o".
// Both segments must start with an alphanumeric; dots, underscores, and
// hyphens are allowed after that. Matching is case-insensitive.
var modelRefRE = regexp.MustCompile(`^(?i)[a-z0-9][a-z0-9._-]*/[a-z0-9][a-z0-9._-]*$`)

// ProfileInput is the narrowed, safe-to-persist projection of an untrusted
// configuration object. Only values produced by ValidatePublicConfig should
// ever reach the repository layer.
type ProfileInput struct {
	Owner          *string  `json:"owner,omitempty"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Avatar         *string  `json:"avatar,omitempty"`
	ModelPrimary   string   `json:"model_primary"`
	ModelFallbacks []string `json:"model_fallbacks"`
	Harness        string   `json:"harness"`
	Skills         []string `json:"skills"`
	MCPs           []string `json:"mcps"`
	CLIs           []string `json:"clis"`
	Version        string   `json:"version"`
}

// FieldError describes one failed field and the constraint it violated.
type FieldError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"` // missing, wrong_type, regex_mismatch, length_bound, invalid_url
	Message    string `json:"message"`
}

// ValidationError aggregates every field failure from a single validation
// pass. Multiple bad fields produce multiple entries, never one generic
// message.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// add records a field failure.
func (e *ValidationError) add(field, constraint, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Constraint: constraint, Message: message})
}

// ValidatePublicConfig narrows an untrusted configuration object to the
// public profile schema. It is a pure function; on failure it returns a
// *ValidationError enumerating every offending field.
func ValidatePublicConfig(raw map[string]interface{}) (*ProfileInput, error) {
	verr := &ValidationError{}
	out := &ProfileInput{
		ModelFallbacks: []string{},
		Skills:         []string{},
		MCPs:           []string{},
		CLIs:           []string{},
		Version:        defaultVersion,
	}

	out.Name = requiredString(raw, "name", 1, maxNameLen, verr)
	out.Description = requiredString(raw, "description", 1, maxDescriptionLen, verr)
	out.Harness = requiredString(raw, "harness", 1, 0, verr)

	if owner, ok, valid := optionalString(raw, "owner", verr); ok && valid {
		if l := len(owner); l < 1 || l > maxOwnerLen {
			verr.add("owner", "length_bound", fmt.Sprintf("must be 1-%d characters", maxOwnerLen))
		} else {
			out.Owner = &owner
		}
	}

	if primary, ok := raw["modelPrimary"]; !ok {
		verr.add("modelPrimary", "missing", "field is required")
	} else if s, isStr := primary.(string); !isStr {
		verr.add("modelPrimary", "wrong_type", "must be a string")
	} else if !modelRefRE.MatchString(s) {
		verr.add("modelPrimary", "regex_mismatch", "must match provider/model (e.g. openai/gpt-4o)")
	} else {
		out.ModelPrimary = s
	}

	if fallbacks, ok := stringList(raw, "modelFallbacks", verr); ok {
		for i, ref := range fallbacks {
			if !modelRefRE.MatchString(ref) {
				verr.add(fmt.Sprintf("modelFallbacks[%d]", i), "regex_mismatch", "must match provider/model")
			}
		}
		if !hasPrefix(verr, "modelFallbacks") {
			out.ModelFallbacks = fallbacks
		}
	}

	for _, key := range []string{"skills", "mcps", "clis"} {
		list, ok := stringList(raw, key, verr)
		if !ok {
			continue
		}
		switch key {
		case "skills":
			out.Skills = list
		case "mcps":
			out.MCPs = list
		case "clis":
			out.CLIs = list
		}
	}

	if v, ok, valid := optionalString(raw, "version", verr); ok && valid {
		// Version is a free-form string. Inputs that parse as a semantic
		// version are stored in canonical form ("v1.2" becomes "1.2.0");
		// anything else ("dev", "latest") passes through untouched.
		if v == "" {
			verr.add("version", "length_bound", "must not be empty")
		} else if parsed, err := goversion.NewVersion(v); err == nil {
			out.Version = parsed.String()
		} else {
			out.Version = v
		}
	}

	if avatar, ok, valid := optionalString(raw, "avatar", verr); ok && valid {
		u, err := url.Parse(avatar)
		if err != nil || u.Scheme == "" || u.Host == "" {
			verr.add("avatar", "invalid_url", "must be a valid absolute URL")
		} else {
			out.Avatar = &avatar
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

// requiredString extracts a mandatory string field with length bounds.
// maxLen of 0 means no upper bound (still must be non-empty).
func requiredString(raw map[string]interface{}, key string, minLen, maxLen int, verr *ValidationError) string {
	v, ok := raw[key]
	if !ok || v == nil {
		verr.add(key, "missing", "field is required")
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		verr.add(key, "wrong_type", "must be a string")
		return ""
	}
	if len(s) < minLen || (maxLen > 0 && len(s) > maxLen) {
		if maxLen > 0 {
			verr.add(key, "length_bound", fmt.Sprintf("must be %d-%d characters", minLen, maxLen))
		} else {
			verr.add(key, "length_bound", "must not be empty")
		}
		return ""
	}
	return s
}

// optionalString extracts an optional string field. The first bool reports
// presence (non-nil), the second whether the value had the right type.
func optionalString(raw map[string]interface{}, key string, verr *ValidationError) (string, bool, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false, false
	}
	s, isStr := v.(string)
	if !isStr {
		verr.add(key, "wrong_type", "must be a string")
		return "", true, false
	}
	return s, true, true
}

// stringList extracts an optional array-of-strings field. A missing field
// yields (nil, false) with no error; a present field of the wrong shape is
// reported and yields (nil, false).
func stringList(raw map[string]interface{}, key string, verr *ValidationError) ([]string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	items, isSlice := v.([]interface{})
	if !isSlice {
		// A []string arrives directly when the caller is Go code rather
		// than decoded JSON.
		if ss, isStrSlice := v.([]string); isStrSlice {
			return ss, true
		}
		verr.add(key, "wrong_type", "must be an array of strings")
		return nil, false
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, isStr := item.(string)
		if !isStr {
			verr.add(fmt.Sprintf("%s[%d]", key, i), "wrong_type", "must be a string")
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func hasPrefix(verr *ValidationError, prefix string) bool {
	for _, f := range verr.Fields {
		if strings.HasPrefix(f.Field, prefix) {
			return true
		}
	}
	return false
}
