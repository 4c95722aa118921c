package validation

import (
	"strings"
	"testing"
)

func TestValidatePlatform(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		wantErr  bool
	}{
		{"discord", "discord", false},
		{"telegram", "telegram", false},
		{"whatsapp", "whatsapp", false},
		{"empty", "", true},
		{"unknown", "slack", true},
		// Case sensitivity – must be lowercase
		{"uppercase", "Discord", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlatform(tt.platform)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlatform(%q) error = %v, wantErr %v", tt.platform, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePlatform_ErrorListsSupported(t *testing.T) {
	err := ValidatePlatform("irc")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, p := range SupportedPlatforms {
		if !strings.Contains(err.Error(), p) {
			t.Errorf("error %q does not mention %q", err.Error(), p)
		}
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		creds    map[string]string
		wantErr  string
	}{
		{"discord with token", "discord", map[string]string{"token": "abc"}, ""},
		{"discord missing token", "discord", map[string]string{}, `"token"`},
		{"discord blank token", "discord", map[string]string{"token": "   "}, `"token"`},
		{"telegram nil map", "telegram", nil, `"token"`},
		{"whatsapp complete", "whatsapp", map[string]string{"api_url": "https://evo.example.com", "api_key": "k"}, ""},
		{"whatsapp missing key", "whatsapp", map[string]string{"api_url": "https://evo.example.com"}, `"api_key"`},
		{"extra fields allowed", "discord", map[string]string{"token": "abc", "application_id": "1"}, ""},
		{"unsupported platform", "slack", map[string]string{"token": "abc"}, "unsupported platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.platform, tt.creds)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetPlatformDisplayName(t *testing.T) {
	tests := map[string]string{
		"discord":  "Discord",
		"telegram": "Telegram",
		"whatsapp": "WhatsApp",
		"unknown":  "unknown",
	}
	for in, want := range tests {
		if got := GetPlatformDisplayName(in); got != want {
			t.Errorf("GetPlatformDisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
