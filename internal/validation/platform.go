// platform.go validates chat platform identifiers and the credential fields each
// platform adapter needs before credentials are sealed and stored.
package validation

import (
	"fmt"
	"strings"
)

// SupportedPlatforms lists all chat platforms an integration can target
var SupportedPlatforms = []string{
	"discord",
	"telegram",
	"whatsapp",
}

// RequiredCredentials lists the credential fields each platform adapter needs
var RequiredCredentials = map[string][]string{
	"discord":  {"token"},
	"telegram": {"token"},
	"whatsapp": {"api_url", "api_key"},
}

// ValidatePlatform validates that the platform identifier is supported
func ValidatePlatform(platform string) error {
	if platform == "" {
		return fmt.Errorf("platform cannot be empty")
	}

	if !isValidPlatform(platform) {
		return fmt.Errorf("unsupported platform: %s (supported: %s)", platform, strings.Join(SupportedPlatforms, ", "))
	}

	return nil
}

// ValidateCredentials checks that every field the platform needs is present and non-blank.
// Extra fields are allowed and stored as given.
func ValidateCredentials(platform string, creds map[string]string) error {
	if err := ValidatePlatform(platform); err != nil {
		return err
	}

	for _, field := range RequiredCredentials[platform] {
		if strings.TrimSpace(creds[field]) == "" {
			return fmt.Errorf("%s credentials require %q", platform, field)
		}
	}

	return nil
}

// isValidPlatform checks if the platform is in the supported list
func isValidPlatform(platform string) bool {
	for _, supported := range SupportedPlatforms {
		if platform == supported {
			return true
		}
	}
	return false
}

// GetPlatformDisplayName returns a human-readable platform name
func GetPlatformDisplayName(platform string) string {
	names := map[string]string{
		"discord":  "Discord",
		"telegram": "Telegram",
		"whatsapp": "WhatsApp",
	}

	if name := names[platform]; name != "" {
		return name
	}
	return platform
}
