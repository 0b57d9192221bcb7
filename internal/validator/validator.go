package validator

import (
	"log"
	"strings"
	"unicode"
)

const (
	// DefaultCountryCode is prepended to bare 10-digit numbers.
	DefaultCountryCode = "91"
	// AddressSuffix turns a normalized number into a chat-platform address.
	AddressSuffix = "@s.whatsapp.net"
)

// FormatNumber normalizes a raw recipient entry into a canonical address.
// Returns "" when the entry cannot be a valid number; the reason is logged
// but never raised, so one bad row cannot break the batch.
func FormatNumber(raw string, row int) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	// First row of an uploaded list is often a column header like
	// "Phone Number". Anything with letters there is not a number.
	if row == 0 && containsLetter(trimmed) {
		log.Printf("⚠️ Skipping header row: %q", trimmed)
		return ""
	}

	cleaned := strings.NewReplacer("+", "", "-", "", " ", "").Replace(trimmed)
	if !allDigits(cleaned) {
		log.Printf("⚠️ Skipping invalid number at row %d: %q", row, trimmed)
		return ""
	}
	if len(cleaned) < 10 {
		log.Printf("⚠️ Skipping too-short number at row %d: %q", row, trimmed)
		return ""
	}

	switch {
	case len(cleaned) == 10:
		return DefaultCountryCode + cleaned + AddressSuffix
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, DefaultCountryCode):
		return cleaned + AddressSuffix
	default:
		return cleaned + AddressSuffix
	}
}

// FormatBatch normalizes a whole list, preserving order. Rejected raw
// entries are returned separately so the submitter can see what was dropped.
func FormatBatch(raw []string) (valid []string, invalid []string) {
	for i, entry := range raw {
		formatted := FormatNumber(entry, i)
		if formatted == "" {
			if strings.TrimSpace(entry) != "" {
				invalid = append(invalid, entry)
			}
			continue
		}
		valid = append(valid, formatted)
	}
	return valid, invalid
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
