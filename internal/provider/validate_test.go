package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseResultValid(t *testing.T) {
	raw := []byte(`{"summary":"roof damage detected","confidence":0.87,"labels":[{"name":"crack","score":0.91},{"name":"moss","score":0.44}]}`)

	result, err := ParseResult("gemini", raw)
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}

	if result.Provider != "gemini" {
		t.Errorf("Expected provider gemini, got %s", result.Provider)
	}
	if result.Summary != "roof damage detected" {
		t.Errorf("Unexpected summary: %s", result.Summary)
	}
	if result.Confidence != 0.87 {
		t.Errorf("Unexpected confidence: %v", result.Confidence)
	}
	if len(result.Labels) != 2 {
		t.Fatalf("Expected 2 labels, got %d", len(result.Labels))
	}
	if result.Labels[0].Name != "crack" || result.Labels[0].Score != 0.91 {
		t.Errorf("Unexpected first label: %+v", result.Labels[0])
	}
	if result.Fallback {
		t.Error("Valid result should not be marked fallback")
	}
}

func TestParseResultLabelsOptional(t *testing.T) {
	result, err := ParseResult("openai", []byte(`{"summary":"ok","confidence":1}`))
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if len(result.Labels) != 0 {
		t.Errorf("Expected no labels, got %d", len(result.Labels))
	}
}

func TestParseResultRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `I think the image shows a roof`},
		{"missing summary", `{"confidence":0.5}`},
		{"empty summary", `{"summary":"","confidence":0.5}`},
		{"numeric summary", `{"summary":42,"confidence":0.5}`},
		{"missing confidence", `{"summary":"ok"}`},
		{"string confidence", `{"summary":"ok","confidence":"high"}`},
		{"confidence above one", `{"summary":"ok","confidence":1.2}`},
		{"negative confidence", `{"summary":"ok","confidence":-0.1}`},
		{"labels not array", `{"summary":"ok","confidence":0.5,"labels":{"name":"x"}}`},
		{"label missing score", `{"summary":"ok","confidence":0.5,"labels":[{"name":"x"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResult("roboflow", []byte(tc.raw))
			if err == nil {
				t.Fatal("Expected validation error")
			}

			var pe *Error
			if !errors.As(err, &pe) {
				t.Fatalf("Expected *provider.Error, got %T", err)
			}
			if pe.Kind != KindTerminal {
				t.Errorf("Invalid output should be terminal, got %s", pe.Kind)
			}
		})
	}
}

func TestFallbackResult(t *testing.T) {
	result := FallbackResult("sam")
	if !result.Fallback {
		t.Error("Fallback result must be flagged")
	}
	if result.Provider != "sam" {
		t.Errorf("Expected provider sam, got %s", result.Provider)
	}
	if result.Confidence != 0 {
		t.Errorf("Fallback confidence should be 0, got %v", result.Confidence)
	}
}

func TestClassify(t *testing.T) {
	if kind := Classify(NewError("p", KindRateLimited, errors.New("429"))); kind != KindRateLimited {
		t.Errorf("Expected rate_limited, got %s", kind)
	}
	if kind := Classify(NewError("p", KindTerminal, errors.New("401"))); kind != KindTerminal {
		t.Errorf("Expected terminal, got %s", kind)
	}
	if kind := Classify(context.DeadlineExceeded); kind != KindTransient {
		t.Errorf("Deadline expiry should be transient, got %s", kind)
	}
	// Unclassifiable errors default to transient: safer to retry.
	if kind := Classify(errors.New("connection reset")); kind != KindTransient {
		t.Errorf("Unknown error should default to transient, got %s", kind)
	}
}

func TestCallTimeout(t *testing.T) {
	now := time.Now()

	if d := CallTimeout(10*time.Second, time.Time{}, now); d != 10*time.Second {
		t.Errorf("No deadline should keep attempt timeout, got %v", d)
	}
	if d := CallTimeout(10*time.Second, now.Add(3*time.Second), now); d != 3*time.Second {
		t.Errorf("Closer deadline should clamp, got %v", d)
	}
	if d := CallTimeout(2*time.Second, now.Add(time.Minute), now); d != 2*time.Second {
		t.Errorf("Far deadline should keep attempt timeout, got %v", d)
	}
}
