package services

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/dcablorh/txsense/internal/models"
)

var (
	packagePattern = regexp.MustCompile(`^0x[a-fA-F0-9]+$`)
	digestPattern  = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{43,45}`)

	transactionMarkers = []string{"txblock", "tx"}
	packageMarkers     = []string{"package", "object"}
)

// Classify turns free-form input (a digest, a 0x id, or an explorer URL)
// into an InputReference. It performs no I/O and never fails.
func Classify(raw string) models.InputReference {
	candidate := strings.TrimSpace(raw)
	if strings.HasPrefix(candidate, "http") {
		if segment, ok := segmentFromURL(candidate); ok {
			candidate = segment
		}
	}

	if packagePattern.MatchString(candidate) {
		return models.InputReference{Kind: models.InputKindPackage, ID: candidate}
	}
	if digest := digestPattern.FindString(candidate); digest != "" {
		return models.InputReference{Kind: models.InputKindTransaction, ID: digest}
	}
	return models.InputReference{Kind: models.InputKindUnknown}
}

// segmentFromURL returns the path segment after a transaction or package
// marker, or the last segment. Unparseable URLs report false.
func segmentFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	var segments []string
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	if len(segments) == 0 {
		return "", false
	}

	if s, ok := afterMarker(segments, transactionMarkers); ok {
		return s, true
	}
	if s, ok := afterMarker(segments, packageMarkers); ok {
		return s, true
	}
	return segments[len(segments)-1], true
}

func afterMarker(segments, markers []string) (string, bool) {
	for i, segment := range segments {
		for _, marker := range markers {
			if segment == marker {
				if i+1 < len(segments) {
					return segments[i+1], true
				}
				return "", false
			}
		}
	}
	return "", false
}
