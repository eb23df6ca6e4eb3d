// sensitive.go implements the advisory sensitive-field detector. It scans the
// raw input's key names (before whitelisting) against a denylist of
// credential-looking substrings and reports what it finds.
//
// Detection is advisory only; findings are logged as a warning to the
// submitter, never used to block validation. The whitelist in validator.go is
// the actual security control: a denylisted field cannot survive into the
// validated output whether or not it is detected here. The detector exists so
// a submitter who accidentally pastes an API key into their config learns
// about it instead of silently having it dropped.
package gatekeeper

import (
	"sort"
	"strings"
)

// sensitiveKeySubstrings is matched case-insensitively as substrings of raw
// input key names.
var sensitiveKeySubstrings = []string{
	"apikey",
	"api_key",
	"token",
	"secret",
	"password",
	"passwd",
	"privatekey",
	"private_key",
	"auth",
	"credential",
	"accesstoken",
	"refreshtoken",
	"clientsecret",
	"bearer",
}

// DetectSensitiveFields returns the raw input keys whose names look like they
// carry credentials, sorted by key name so output is deterministic. Each
// offending key is reported once even when it matches several substrings.
func DetectSensitiveFields(raw map[string]interface{}) []string {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var found []string
	for _, key := range keys {
		lower := strings.ToLower(key)
		for _, needle := range sensitiveKeySubstrings {
			if strings.Contains(lower, needle) {
				found = append(found, key)
				break
			}
		}
	}
	return found
}
