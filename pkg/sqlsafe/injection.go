package sqlsafe

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding describes a string input that matched a SQL injection
// signature.
type InjectionFinding struct {
	Field       string
	Fingerprint string
}

// ScreenValue runs libinjection over an externally supplied string. Returns
// nil when the value is clean. Non-string inputs never reach this check;
// they cannot carry injection payloads.
func ScreenValue(field, value string) *InjectionFinding {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionFinding{Field: field, Fingerprint: string(fingerprint)}
}

// ScreenAll screens a set of named string inputs and returns all findings.
func ScreenAll(values map[string]string) []*InjectionFinding {
	var findings []*InjectionFinding
	for field, value := range values {
		if f := ScreenValue(field, value); f != nil {
			findings = append(findings, f)
		}
	}
	return findings
}
