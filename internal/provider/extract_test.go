package provider

import "testing"

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fence without language", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around object", `Sure! Here you go: {"a":1} Hope that helps.`, `{"a":1}`, false},
		{"no object", "I cannot help with that.", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractJSONObject(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONObject(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	got, err := extractJSONArray("Here are the trends:\n```json\n[{\"title\":\"x\"}]\n```")
	if err != nil {
		t.Fatalf("extractJSONArray: %v", err)
	}
	if got != `[{"title":"x"}]` {
		t.Errorf("got %q, want the bare array", got)
	}

	if _, err := extractJSONArray("no list here"); err == nil {
		t.Error("expected error for input without an array")
	}
}
