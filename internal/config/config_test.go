package config

import (
	"os"
	"testing"
	"time"

	"github.com/lexiqai/ptt-client/internal/audio"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PTT_SERVER_URI", "wss://zello.example/ws")
	t.Setenv("PTT_CHANNEL", "ops")
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PTT_USERNAME", "alice")
	t.Setenv("PTT_PASSWORD", "secret")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.ServerURI != "wss://zello.example/ws" {
		t.Errorf("Expected ServerURI 'wss://zello.example/ws', got '%s'", cfg.ServerURI)
	}
	if cfg.Username != "alice" {
		t.Errorf("Expected Username 'alice', got '%s'", cfg.Username)
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	os.Unsetenv("PTT_SERVER_URI")
	os.Unsetenv("PTT_CHANNEL")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when required settings are missing")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "9102" {
		t.Errorf("Expected default Port '9102', got '%s'", cfg.Port)
	}
	if cfg.AckTimeout != 5*time.Second {
		t.Errorf("Expected default AckTimeout 5s, got %s", cfg.AckTimeout)
	}
	if cfg.PacketDuration() != 20*time.Millisecond {
		t.Errorf("Expected default packet duration 20ms, got %s", cfg.PacketDuration())
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	format, err := cfg.AudioFormat()
	if err != nil {
		t.Fatalf("AudioFormat() failed: %v", err)
	}
	if format != audio.DefaultFormat() {
		t.Errorf("Expected default format %s, got %s", audio.DefaultFormat(), format)
	}

	if _, enabled, err := cfg.Vox(); err != nil || enabled {
		t.Errorf("Expected VOX disabled by default, got enabled=%v err=%v", enabled, err)
	}
}

func TestLoadFromEnv_VoxAndFractionalPacket(t *testing.T) {
	setRequired(t)
	t.Setenv("PTT_VOX_MODE", "aggressive")
	t.Setenv("PTT_PACKET_DURATION_MS", "2.5")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	mode, enabled, err := cfg.Vox()
	if err != nil || !enabled || mode != audio.VoxModeAggressive {
		t.Errorf("Expected aggressive VOX, got mode=%s enabled=%v err=%v", mode, enabled, err)
	}
	if cfg.PacketDuration() != 2500*time.Microsecond {
		t.Errorf("Expected 2.5ms packets, got %s", cfg.PacketDuration())
	}
}

func TestLoadFromEnv_InvalidSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("PTT_VOX_MODE", "shouting")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown VOX mode")
	}

	t.Setenv("PTT_VOX_MODE", "")
	t.Setenv("PTT_ENCODING", "flac")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown encoding")
	}
}
