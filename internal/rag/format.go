package rag

import (
	"strconv"
	"strings"
)

const (
	// NoResultsMessage is returned by Format for an empty record list.
	NoResultsMessage = "No relevant information found in the textbook."

	referencesHeader = "REFERENCES FROM TEXTBOOK:\n\n"
	missingField     = "N/A"
)

// Format renders records as numbered source blocks in input order.
func Format(records []ContentRecord) string {
	if len(records) == 0 {
		return NoResultsMessage
	}

	var b strings.Builder
	b.WriteString(referencesHeader)
	for i, rec := range records {
		b.WriteString("--- Source ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(" ---\n")
		b.WriteString("Chapter: ")
		b.WriteString(orMissing(rec.Title))
		b.WriteString("\nSection: ")
		b.WriteString(orMissing(rec.Heading))
		b.WriteString("\nText: ")
		b.WriteString(orMissing(rec.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func orMissing(s string) string {
	if s == "" {
		return missingField
	}
	return s
}
