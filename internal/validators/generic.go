package validators

import (
	"net/url"
	"strings"
)

// GenericValidator accepts any absolute http(s) URL and leaves extractor
// selection to the downloader.
type GenericValidator struct{}

// NewGenericValidator creates the catch-all validator.
func NewGenericValidator() *GenericValidator {
	return &GenericValidator{}
}

func (v *GenericValidator) SourceType() SourceType {
	return SourceGeneric
}

func (v *GenericValidator) CanHandle(rawURL string) bool {
	return strings.TrimSpace(rawURL) != ""
}

func (v *GenericValidator) Validate(rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{SourceType: SourceGeneric, URL: rawURL, Error: "invalid URL format"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationResult{SourceType: SourceGeneric, URL: rawURL, Error: "invalid URL scheme"}
	}
	if parsed.Host == "" {
		return ValidationResult{SourceType: SourceGeneric, URL: rawURL, Error: "URL has no host"}
	}

	return ValidationResult{
		Valid:      true,
		SourceType: SourceGeneric,
		MediaType:  "video",
		URL:        rawURL,
	}
}
