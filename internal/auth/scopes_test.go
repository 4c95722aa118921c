package auth

import (
	"reflect"
	"testing"
)

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"empty list", []string{}, false},
		{"single valid scope", []string{"messages:read"}, false},
		{"multiple valid scopes", []string{"messages:read", "keys:write", "members:read"}, false},
		{"all defined scopes", func() []string {
			s := make([]string, 0, len(AllScopes()))
			for _, sc := range AllScopes() {
				s = append(s, string(sc))
			}
			return s
		}(), false},
		{"invalid scope", []string{"not:a:scope"}, true},
		{"admin is not a scope", []string{"admin"}, true},
		{"mixed valid and invalid", []string{"messages:read", "invalid"}, true},
		{"empty string scope", []string{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes(%v) error = %v, wantErr %v", tt.scopes, err, tt.wantErr)
			}
		})
	}
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required Scope
		want     bool
	}{
		{"exact match", []string{"messages:read"}, ScopeMessagesRead, true},
		{"write does not imply read", []string{"messages:write"}, ScopeMessagesRead, false},
		{"read does not imply write", []string{"messages:read"}, ScopeMessagesWrite, false},
		{"other resource", []string{"keys:write"}, ScopeMessagesWrite, false},
		{"nil granted", nil, ScopeMessagesRead, false},
		{"case sensitive", []string{"Messages:Read"}, ScopeMessagesRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasScope(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasScope(%v, %s) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestHasAllScopes(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []Scope
		want     bool
	}{
		{"empty required always allows", nil, nil, true},
		{"empty required with grants", []string{"keys:read"}, []Scope{}, true},
		{"single satisfied", []string{"messages:write"}, []Scope{ScopeMessagesWrite}, true},
		{"subset satisfied", []string{"messages:read", "messages:write", "keys:read"}, []Scope{ScopeMessagesRead, ScopeMessagesWrite}, true},
		{"one of two missing", []string{"messages:read"}, []Scope{ScopeMessagesRead, ScopeMessagesWrite}, false},
		{"none granted", []string{}, []Scope{ScopeKeysWrite}, false},
		{"duplicates in required", []string{"keys:read"}, []Scope{ScopeKeysRead, ScopeKeysRead}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAllScopes(tt.granted, tt.required); got != tt.want {
				t.Errorf("HasAllScopes(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

// HasAllScopes must agree with a set-subset check for every combination of scopes.
func TestHasAllScopes_SubsetProperty(t *testing.T) {
	all := AllScopes()[:6]
	n := len(all)
	for r := 0; r < 1<<n; r++ {
		for g := 0; g < 1<<n; g++ {
			var required []Scope
			var granted []string
			for i := 0; i < n; i++ {
				if r&(1<<i) != 0 {
					required = append(required, all[i])
				}
				if g&(1<<i) != 0 {
					granted = append(granted, string(all[i]))
				}
			}
			want := r&g == r
			if got := HasAllScopes(granted, required); got != want {
				t.Fatalf("HasAllScopes(%v, %v) = %v, want %v", granted, required, got, want)
			}
		}
	}
}

func TestHasAnyScope(t *testing.T) {
	if HasAnyScope([]string{"keys:read"}, nil) {
		t.Error("HasAnyScope with empty required = true, want false")
	}
	if !HasAnyScope([]string{"keys:read"}, []Scope{ScopeMessagesRead, ScopeKeysRead}) {
		t.Error("HasAnyScope = false, want true")
	}
}

func TestMissingScopes(t *testing.T) {
	got := MissingScopes([]string{"messages:read"}, []Scope{ScopeMessagesRead, ScopeMessagesWrite, ScopeKeysRead})
	want := []string{"messages:write", "keys:read"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingScopes() = %v, want %v", got, want)
	}
	if got := MissingScopes(nil, nil); len(got) != 0 {
		t.Errorf("MissingScopes(nil, nil) = %v, want empty", got)
	}
}

func TestGetDefaultScopes(t *testing.T) {
	if err := ValidateScopes(GetDefaultScopes()); err != nil {
		t.Errorf("default scopes invalid: %v", err)
	}
}

func TestValidateScopeString(t *testing.T) {
	if err := ValidateScopeString("webhooks:write"); err != nil {
		t.Errorf("ValidateScopeString(webhooks:write) error: %v", err)
	}
	if err := ValidateScopeString("webhooks:admin"); err == nil {
		t.Error("ValidateScopeString(webhooks:admin) expected error")
	}
}
