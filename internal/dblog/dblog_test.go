package dblog

import (
	"bytes"
	"io"
	"testing"
)

func TestInitSwitchesBetweenJSONAndConsoleOutput(t *testing.T) {
	var jsonBuf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &jsonBuf})
	Logger.Info().Msg("hello")
	if !bytes.Contains(jsonBuf.Bytes(), []byte(`"message":"hello"`)) {
		t.Fatalf("expected JSON output to contain a message field, got %s", jsonBuf.String())
	}

	var consoleBuf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: false, Output: &consoleBuf})
	Logger.Info().Msg("hello")
	if bytes.Contains(consoleBuf.Bytes(), []byte(`"message":"hello"`)) {
		t.Fatalf("expected console output to not be raw JSON, got %s", consoleBuf.String())
	}

	Init(Config{Level: InfoLevel, Output: io.Discard})
}

func TestWithComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	l := WithComponent("bufferpool")
	l.Info().Msg("evicted page")
	if !bytes.Contains(buf.Bytes(), []byte(`"component":"bufferpool"`)) {
		t.Fatalf("expected component tag in output, got %s", buf.String())
	}

	Init(Config{Level: InfoLevel, Output: io.Discard})
}

func TestDefaultLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Level("bogus"), JSONOutput: true, Output: &buf})
	Logger.Debug().Msg("should be filtered")
	Logger.Info().Msg("should appear")
	if bytes.Contains(buf.Bytes(), []byte("should be filtered")) {
		t.Fatalf("expected debug-level message to be filtered at the default info level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("should appear")) {
		t.Fatalf("expected info-level message to appear")
	}

	Init(Config{Level: InfoLevel, Output: io.Discard})
}
