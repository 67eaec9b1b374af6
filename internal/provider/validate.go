package provider

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// maxLoggedPayload bounds how much raw provider output lands in the log
// when validation rejects it.
const maxLoggedPayload = 512

// ParseResult validates raw provider JSON output against the result schema.
// Required fields: "summary" (string) and "confidence" (number in [0,1]).
// Optional: "labels" as an array of {name, score} objects.
//
// Invalid output is a terminal failure: the vendor returned something we
// cannot trust, and retrying the same input elsewhere will not repair this
// provider's contract. The raw payload is logged for diagnosis.
func ParseResult(name string, raw []byte) (*Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, rejectRaw(name, raw, "response is not valid JSON")
	}

	summary := gjson.GetBytes(raw, "summary")
	if summary.Type != gjson.String || summary.Str == "" {
		return nil, rejectRaw(name, raw, "missing or non-string summary")
	}

	confidence := gjson.GetBytes(raw, "confidence")
	if !confidence.Exists() || confidence.Type != gjson.Number {
		return nil, rejectRaw(name, raw, "missing or non-numeric confidence")
	}
	if confidence.Num < 0 || confidence.Num > 1 {
		return nil, rejectRaw(name, raw, fmt.Sprintf("confidence %v outside [0,1]", confidence.Num))
	}

	result := &Result{
		Provider:   name,
		Summary:    summary.Str,
		Confidence: confidence.Num,
	}

	labels := gjson.GetBytes(raw, "labels")
	if labels.Exists() {
		if !labels.IsArray() {
			return nil, rejectRaw(name, raw, "labels is not an array")
		}
		var bad bool
		labels.ForEach(func(_, item gjson.Result) bool {
			lname := item.Get("name")
			score := item.Get("score")
			if lname.Type != gjson.String || score.Type != gjson.Number {
				bad = true
				return false
			}
			result.Labels = append(result.Labels, Label{Name: lname.Str, Score: score.Num})
			return true
		})
		if bad {
			return nil, rejectRaw(name, raw, "labels entry missing name or score")
		}
	}

	return result, nil
}

// FallbackResult is the explicit, documented default returned for providers
// configured as lenient when their output fails validation. It is never
// inferred from the invalid payload.
func FallbackResult(name string) *Result {
	return &Result{
		Provider:   name,
		Summary:    "analysis unavailable: provider returned an unparseable response",
		Confidence: 0,
		Fallback:   true,
	}
}

func rejectRaw(name string, raw []byte, reason string) error {
	logged := raw
	if len(logged) > maxLoggedPayload {
		logged = logged[:maxLoggedPayload]
	}
	log.WithFields(log.Fields{
		"provider": name,
		"payload":  string(logged),
	}).Warnf("Rejected provider response: %s", reason)

	return NewError(name, KindTerminal, fmt.Errorf("invalid provider response: %s", reason))
}
