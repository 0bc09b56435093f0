package validation

import "testing"

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"user.name+tag@sub.example.org", true},
		{"", false},
		{"not-an-email", false},
		{"@example.com", false},
	}

	for _, tc := range cases {
		err := ValidateEmail(tc.email)
		if tc.valid && err != nil {
			t.Errorf("ValidateEmail(%q) unexpected error: %v", tc.email, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateEmail(%q) expected error", tc.email)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("secret1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("expected error for short password")
	}
	if err := ValidatePassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestValidateDocumentID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"abc123", true},
		{"doc_1-final", true},
		{"", false},
		{"has spaces", false},
		{"bad/slash", false},
	}

	for _, tc := range cases {
		err := ValidateDocumentID(tc.id)
		if tc.valid && err != nil {
			t.Errorf("ValidateDocumentID(%q) unexpected error: %v", tc.id, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateDocumentID(%q) expected error", tc.id)
		}
	}
}

func TestValidatePeerID(t *testing.T) {
	if err := ValidatePeerID("peer_8f2a"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidatePeerID(""); err == nil {
		t.Error("expected error for empty peer ID")
	}
}

func TestValidateDocumentTitle(t *testing.T) {
	if err := ValidateDocumentTitle("Meeting notes"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateDocumentTitle("   "); err == nil {
		t.Error("expected error for blank title")
	}
}
