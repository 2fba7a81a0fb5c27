package config

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"host", RoleHost, false},
		{"player", RolePlayer, false},
		{"client", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRole(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestParseTransport(t *testing.T) {
	for _, in := range []string{"ws", "webrtc"} {
		if got, err := ParseTransport(in); err != nil || string(got) != in {
			t.Errorf("ParseTransport(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTransport("bluetooth"); err == nil {
		t.Error("ParseTransport(bluetooth) should fail")
	}
}

func TestDefaultHubConfig(t *testing.T) {
	cfg := DefaultHubConfig()
	if cfg.Role != RolePlayer {
		t.Errorf("Role = %q, want player", cfg.Role)
	}
	if cfg.PacingDelay != DefaultPacingDelay || cfg.ReadBufferSize != DefaultReadBufferSize || cfg.QueueSize != DefaultQueueSize {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
