package payload

import (
	"errors"
	"testing"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		name          string
		ref           string
		defaultBucket string
		wantBucket    string
		wantKey       string
		wantErr       bool
	}{
		{"explicit bucket", "uploads/site-42/roof.jpg", "media", "uploads", "site-42/roof.jpg", false},
		{"bare key uses default", "roof.jpg", "media", "media", "roof.jpg", false},
		{"leading slash stripped", "/uploads/roof.jpg", "", "uploads", "roof.jpg", false},
		{"empty reference", "", "media", "", "", true},
		{"whitespace only", "   ", "media", "", "", true},
		{"bare key without default", "roof.jpg", "", "", "", true},
		{"trailing slash", "uploads/", "media", "media", "uploads/", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bucket, key, err := ParseReference(tc.ref, tc.defaultBucket)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q", tc.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReference(%q) failed: %v", tc.ref, err)
			}
			if bucket != tc.wantBucket || key != tc.wantKey {
				t.Errorf("ParseReference(%q) = %q/%q, want %q/%q", tc.ref, bucket, key, tc.wantBucket, tc.wantKey)
			}
		})
	}
}

func TestParseReferenceEmptyError(t *testing.T) {
	_, _, err := ParseReference("", "media")
	if !errors.Is(err, ErrEmptyReference) {
		t.Errorf("Expected ErrEmptyReference, got %v", err)
	}
}

func TestNewResolverRequiresEndpoint(t *testing.T) {
	if _, err := NewResolver(Config{}); err == nil {
		t.Error("Expected error without endpoint")
	}
}
