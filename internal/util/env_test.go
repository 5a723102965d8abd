package util

import (
	"testing"
	"time"
)

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"", false, false},
		{"   ", true, true},
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"1", false, true},
		{"false", true, false},
		{"Off", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("MEETINGBOT_TEST_BOOL", tt.value)
		if got := EnvBool("MEETINGBOT_TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("EnvBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	const fallback = 72 * time.Hour
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", fallback},
		{"30m", 30 * time.Minute},
		{" 2h ", 2 * time.Hour},
		{"0s", fallback},
		{"-1h", fallback},
		{"soon", fallback},
	}
	for _, tt := range tests {
		t.Setenv("MEETINGBOT_TEST_DURATION", tt.value)
		if got := EnvDuration("MEETINGBOT_TEST_DURATION", fallback); got != tt.want {
			t.Errorf("EnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
