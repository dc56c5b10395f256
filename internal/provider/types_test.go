package provider

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestRemoteIDUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RemoteID
	}{
		{"string id", `"10545763"`, "10545763"},
		{"small number", `10545763`, "10545763"},
		// Larger than 2^53; float64 decoding would corrupt it.
		{"unsafe integer", `10545763170255251`, "10545763170255251"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RemoteID
			if err := json.Unmarshal([]byte(tt.raw), &id); err != nil {
				t.Fatalf("unmarshal %s failed: %v", tt.raw, err)
			}
			if id != tt.want {
				t.Errorf("unmarshal %s = %q, want %q", tt.raw, id, tt.want)
			}
		})
	}
}

func TestRemoteIDUnmarshalInsideDocument(t *testing.T) {
	raw := `{"id": 10545763170255251, "providerId": "16441", "refreshInfo": {"status": "SUCCESS"}}`
	var pa ProviderAccount
	if err := json.Unmarshal([]byte(raw), &pa); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if pa.ID != "10545763170255251" {
		t.Errorf("id = %q, want the full digit string", pa.ID)
	}
	if pa.ProviderID != "16441" {
		t.Errorf("providerId = %q, want 16441", pa.ProviderID)
	}
}

func TestDateRoundTrip(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-01-12"`), &d); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	if !d.Time.Equal(want) {
		t.Errorf("date = %v, want %v", d.Time, want)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"2024-01-12"` {
		t.Errorf("marshal = %s, want \"2024-01-12\"", out)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   ErrorKind
	}{
		{400, "INVALID_CREDENTIALS", KindAuthFailure},
		{400, "CREDENTIALS_LOCKED", KindAuthFailure},
		{400, "MFA_REQUIRED_NOT_PROVIDED", KindMFAFailure},
		{400, "INCORRECT_MFA_RESPONSE", KindMFAFailure},
		{400, "INVALID_INPUT", KindBadRequest},
		{404, "", KindNotFound},
		{401, "", KindAuthFailure},
		{403, "", KindAuthFailure},
		{400, "", KindBadRequest},
		{429, "", KindTransient},
		{500, "", KindTransient},
		{503, "", KindTransient},
		{418, "", KindInternal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.code), func(t *testing.T) {
			if got := classify(tt.status, tt.code); got != tt.want {
				t.Errorf("classify(%d, %q) = %s, want %s", tt.status, tt.code, got, tt.want)
			}
		})
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("login failed: %w", &Error{Kind: KindAuthFailure, Code: "INVALID_CREDENTIALS"})
	if KindOf(err) != KindAuthFailure {
		t.Errorf("KindOf wrapped error = %s, want auth_failure", KindOf(err))
	}
	if KindOf(fmt.Errorf("plain")) != KindInternal {
		t.Error("plain errors must classify as internal")
	}
	if !IsNotFound(&Error{Kind: KindNotFound}) {
		t.Error("IsNotFound failed for a not-found error")
	}
}
