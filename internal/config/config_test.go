package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.History.PersistLimit != 15 {
		t.Fatalf("expected persist limit 15, got %d", cfg.History.PersistLimit)
	}
	if cfg.History.Key != "vocalforge_persistent_history_v3" {
		t.Fatalf("unexpected history key %q", cfg.History.Key)
	}
	if cfg.Speech.SampleRate != 24000 || cfg.Speech.Channels != 1 {
		t.Fatalf("unexpected audio format %d/%d", cfg.Speech.SampleRate, cfg.Speech.Channels)
	}
	if cfg.Speech.CloneVoice != "Charon" {
		t.Fatalf("expected stand-in voice Charon, got %q", cfg.Speech.CloneVoice)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOCALFORGE_BUS_ENABLED", "true")
	t.Setenv("VOCALFORGE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOCALFORGE_BUS_EMBEDDED", "false")
	t.Setenv("VOCALFORGE_STORAGE_DRIVER", "nats")
	t.Setenv("VOCALFORGE_STORAGE_BUCKET", "history")
	t.Setenv("VOCALFORGE_STORAGE_MAX_VALUE_BYTES", "1024")
	t.Setenv("VOCALFORGE_HISTORY_PERSIST_LIMIT", "3")
	t.Setenv("VOCALFORGE_SPEECH_MODE", "mock")
	t.Setenv("VOCALFORGE_SPEECH_TIMEOUT_MS", "1500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Embedded {
		t.Fatal("expected embedded override false")
	}
	if cfg.Storage.Driver != "nats" || cfg.Storage.Bucket != "history" {
		t.Fatalf("expected storage override, got %+v", cfg.Storage)
	}
	if cfg.Storage.MaxValueBytes != 1024 {
		t.Fatalf("expected max value bytes override")
	}
	if cfg.History.PersistLimit != 3 {
		t.Fatalf("expected persist limit override")
	}
	if cfg.Speech.Timeout().Milliseconds() != 1500 {
		t.Fatalf("expected timeout override, got %v", cfg.Speech.Timeout())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocalforge.yaml")
	data := []byte(`speech:
  mode: exec
  command: "python3 tts.py --voice default"
storage:
  driver: memory
history:
  persist_limit: 5
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Speech.Mode != "exec" || cfg.Speech.Command == "" {
		t.Fatalf("expected exec speech config, got %+v", cfg.Speech)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected memory storage")
	}
	if cfg.History.PersistLimit != 5 {
		t.Fatalf("expected persist limit 5")
	}
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := Default()
	cfg.Speech.Mode = "carrier-pigeon"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown speech mode")
	}

	cfg = Default()
	cfg.Storage.Driver = "floppy"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}

	cfg = Default()
	cfg.Storage.Driver = "nats"
	if err := validate(cfg); err == nil {
		t.Fatal("expected nats storage to require the bus")
	}
}

func TestBusMaxPayload(t *testing.T) {
	if got := Default().Bus.MaxPayload; got != 8*1024*1024 {
		t.Fatalf("expected 8 MiB default, got %d", got)
	}

	t.Setenv("VOCALFORGE_BUS_MAX_PAYLOAD_BYTES", "2097152")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.MaxPayload != 2*1024*1024 {
		t.Fatalf("expected env override, got %d", cfg.Bus.MaxPayload)
	}

	for _, size := range []int{0, -1, MaxBusPayload + 1} {
		cfg := Default()
		cfg.Bus.Enabled = true
		cfg.Bus.Embedded = true
		cfg.Bus.MaxPayload = size
		if err := validate(cfg); err == nil {
			t.Fatalf("expected max payload %d to be rejected", size)
		}
	}

	cfg = Default()
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.MaxPayload = MaxBusPayload
	if err := validate(cfg); err != nil {
		t.Fatalf("expected the 64 MiB ceiling to be accepted, got %v", err)
	}
}

func TestCredentialError(t *testing.T) {
	cases := []struct {
		name    string
		mode    string
		key     string
		wantErr bool
	}{
		{"missing", "gemini", "", true},
		{"placeholder", "gemini", "undefined", true},
		{"present", "gemini", "AIza-test", false},
		{"mock needs no key", "mock", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := SpeechConfig{Mode: tc.mode, APIKey: tc.key}
			err := s.CredentialError()
			if tc.wantErr && !errors.Is(err, ErrMissingCredential) {
				t.Fatalf("expected ErrMissingCredential, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "fallback-key")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.APIKey != "fallback-key" || cfg.Speech.APIKeySource != "API_KEY" {
		t.Fatalf("expected API_KEY fallback, got %q from %q", cfg.Speech.APIKey, cfg.Speech.APIKeySource)
	}
}
