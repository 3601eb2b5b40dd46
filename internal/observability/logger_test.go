package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLogger_LevelFallback(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logger := newLogger(&buf, "bogus", false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("Expected debug line to be filtered at default info level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("Expected info line to be written")
	}
}

func TestWithSessionID(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logger := WithComponent(WithSessionID(newLogger(&buf, "info", false), "abc"), "floor")
	logger.Info().Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON log line, got %q", buf.String())
	}
	if line["session_id"] != "abc" {
		t.Errorf("Expected session_id abc, got %v", line["session_id"])
	}
	if line["component"] != "floor" {
		t.Errorf("Expected component floor, got %v", line["component"])
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	if NewSessionID() == NewSessionID() {
		t.Error("Expected distinct session ids")
	}
}
