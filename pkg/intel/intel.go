// Package intel extracts actionable indicators from counterparty messages:
// payment handles, bank account numbers, phone numbers, phishing links and
// urgency keywords. Extraction is pure and stateless; all patterns are
// compiled once at package init.
package intel

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Pre-compiled extraction patterns (compiled once, used many times)
var (
	// UPI-style payment handles: user@bank
	rePaymentHandle = regexp.MustCompile(`[a-zA-Z0-9.\-_]+@[a-zA-Z]+`)
	// Bare 9-18 digit runs read as bank account numbers
	reBankAccount = regexp.MustCompile(`\b\d{9,18}\b`)
	// Indian mobile numbers, optional +91 prefix
	rePhoneNumber = regexp.MustCompile(`(\+91[\-\s]?)?[6789]\d{9}`)
	// Any http(s) URL is recorded as a potential phishing link
	rePhishingLink = regexp.MustCompile(`https?://[^\s]+`)
)

// Record is the structured set of indicators extracted from a session.
// Each field has set semantics: distinct values, order irrelevant.
// JSON field names match the final-report schema.
type Record struct {
	UPIIDs             []string `json:"upiIds"`
	BankAccounts       []string `json:"bankAccounts"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	PhishingLinks      []string `json:"phishingLinks"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// HasArtifacts reports whether the record contains at least one hard
// artifact (payment handle, bank account, or phishing link). Keyword and
// phone matches alone do not count: they are too easy to trip by accident.
func (r Record) HasArtifacts() bool {
	return len(r.UPIIDs) > 0 || len(r.BankAccounts) > 0 || len(r.PhishingLinks) > 0
}

// Total returns the number of extracted indicators across all fields.
func (r Record) Total() int {
	return len(r.UPIIDs) + len(r.BankAccounts) + len(r.PhoneNumbers) +
		len(r.PhishingLinks) + len(r.SuspiciousKeywords)
}

// Extractor scans text against the fixed patterns plus a configured
// suspicious-keyword vocabulary.
type Extractor struct {
	reKeywords *regexp.Regexp
}

// NewExtractor builds an Extractor over the given keyword vocabulary
// (matched case-insensitively on word boundaries).
func NewExtractor(keywords []string) *Extractor {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(k)))
		}
	}
	if len(quoted) == 0 {
		// Degenerate vocabulary still needs a valid regex; match nothing.
		return &Extractor{reKeywords: regexp.MustCompile(`\b\B`)}
	}
	return &Extractor{
		reKeywords: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`),
	}
}

// Scan extracts all indicators from one message. Pure: same input, same
// output. Input is NFKC-folded first so full-width digits and similar
// obfuscations still extract.
func (e *Extractor) Scan(text string) Record {
	if text == "" {
		return Record{}
	}
	text = norm.NFKC.String(text)

	kw := e.reKeywords.FindAllString(text, -1)
	for i, k := range kw {
		kw[i] = strings.ToLower(k)
	}

	return Record{
		UPIIDs:             dedupe(rePaymentHandle.FindAllString(text, -1)),
		BankAccounts:       dedupe(reBankAccount.FindAllString(text, -1)),
		PhoneNumbers:       dedupe(rePhoneNumber.FindAllString(text, -1)),
		PhishingLinks:      dedupe(rePhishingLink.FindAllString(text, -1)),
		SuspiciousKeywords: dedupe(kw),
	}
}

// Merge unions two records field by field with set semantics.
// Idempotent: merging the same record twice equals merging it once.
func Merge(a, b Record) Record {
	return Record{
		UPIIDs:             union(a.UPIIDs, b.UPIIDs),
		BankAccounts:       union(a.BankAccounts, b.BankAccounts),
		PhoneNumbers:       union(a.PhoneNumbers, b.PhoneNumbers),
		PhishingLinks:      union(a.PhishingLinks, b.PhishingLinks),
		SuspiciousKeywords: union(a.SuspiciousKeywords, b.SuspiciousKeywords),
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
