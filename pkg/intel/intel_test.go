package intel

import (
	"reflect"
	"testing"
)

func defaultExtractor() *Extractor {
	return NewExtractor([]string{"urgent", "block", "verify", "kyc", "suspend", "otp"})
}

func TestScan_TypicalScamMessage(t *testing.T) {
	e := defaultExtractor()
	rec := e.Scan("URGENT: send OTP to verify your account, UPI id test@upi, call +919876543210")

	if len(rec.SuspiciousKeywords) == 0 {
		t.Error("expected at least one suspicious keyword")
	}
	if !contains(rec.UPIIDs, "test@upi") {
		t.Errorf("UPIIDs = %v, want test@upi", rec.UPIIDs)
	}
	if !contains(rec.PhoneNumbers, "+919876543210") {
		t.Errorf("PhoneNumbers = %v, want +919876543210", rec.PhoneNumbers)
	}
}

func TestScan_Fields(t *testing.T) {
	e := defaultExtractor()

	tests := []struct {
		name string
		text string
		want func(Record) bool
	}{
		{"bank account", "transfer to 123456789012", func(r Record) bool {
			return contains(r.BankAccounts, "123456789012")
		}},
		{"phishing link", "click https://evil.example/kyc now", func(r Record) bool {
			return contains(r.PhishingLinks, "https://evil.example/kyc")
		}},
		{"keyword case-insensitive", "please VERIFY your KYC", func(r Record) bool {
			return contains(r.SuspiciousKeywords, "verify") && contains(r.SuspiciousKeywords, "kyc")
		}},
		{"phone without prefix", "call 9876543210", func(r Record) bool {
			return contains(r.PhoneNumbers, "9876543210")
		}},
		{"too short for bank account", "code 12345678", func(r Record) bool {
			return len(r.BankAccounts) == 0
		}},
		{"empty text", "", func(r Record) bool {
			return r.Total() == 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.Scan(tt.text)
			if !tt.want(rec) {
				t.Errorf("Scan(%q) = %+v", tt.text, rec)
			}
		})
	}
}

func TestScan_NormalizesFullWidthDigits(t *testing.T) {
	e := defaultExtractor()
	// Full-width digits NFKC-fold to ASCII and should still extract.
	rec := e.Scan("account １２３４５６７８９０１２")
	if len(rec.BankAccounts) != 1 {
		t.Errorf("BankAccounts = %v, want one folded match", rec.BankAccounts)
	}
}

func TestScan_Deduplicates(t *testing.T) {
	e := defaultExtractor()
	rec := e.Scan("pay test@upi or test@upi, urgent urgent URGENT")
	if len(rec.UPIIDs) != 1 {
		t.Errorf("UPIIDs = %v, want single entry", rec.UPIIDs)
	}
	if len(rec.SuspiciousKeywords) != 1 {
		t.Errorf("SuspiciousKeywords = %v, want single entry", rec.SuspiciousKeywords)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	e := defaultExtractor()
	text := "URGENT: verify at https://evil.example, pay test@upi or 123456789012"

	once := Merge(Record{}, e.Scan(text))
	twice := Merge(once, e.Scan(text))

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMerge_UnionGrowsOnly(t *testing.T) {
	e := defaultExtractor()
	a := e.Scan("pay test@upi")
	b := e.Scan("or other@bank and call 9876543210")

	merged := Merge(a, b)
	if len(merged.UPIIDs) != 2 {
		t.Errorf("UPIIDs = %v, want both handles", merged.UPIIDs)
	}
	if len(merged.PhoneNumbers) != 1 {
		t.Errorf("PhoneNumbers = %v, want one number", merged.PhoneNumbers)
	}
	// Merging never shrinks a field.
	if merged.Total() < a.Total() || merged.Total() < b.Total() {
		t.Error("merged record smaller than an input")
	}
}

func TestHasArtifacts(t *testing.T) {
	e := defaultExtractor()

	if e.Scan("URGENT verify your otp now").HasArtifacts() {
		t.Error("keyword-only record should have no artifacts")
	}
	if !e.Scan("pay test@upi").HasArtifacts() {
		t.Error("payment handle should count as artifact")
	}
	if !e.Scan("https://evil.example").HasArtifacts() {
		t.Error("phishing link should count as artifact")
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
