package summarize

import (
	"encoding/json"
	"testing"

	"speechd/config"
)

func TestNewDisabledWhenNoProvider(t *testing.T) {
	c, err := New(config.SummarizeConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c != nil {
		t.Fatalf("New() with no provider = %+v, want nil", c)
	}
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New(config.SummarizeConfig{Provider: "openai"})
	if err == nil {
		t.Fatal("New() with empty model, want error")
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(config.SummarizeConfig{Provider: "fakecloud", Model: "some-model"})
	if err == nil {
		t.Fatal("New() with unsupported provider, want error")
	}
}

func TestNewOllamaNoAPIKeyRequired(t *testing.T) {
	c, err := New(config.SummarizeConfig{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("New(ollama): %v", err)
	}
	if c == nil {
		t.Fatal("New(ollama) = nil, want a client")
	}
}

func TestResultUnmarshalsExpectedShape(t *testing.T) {
	var r Result
	if err := json.Unmarshal([]byte(`{"summary":"a meeting about X","keywords":["x","y"]}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Summary != "a meeting about X" || len(r.Keywords) != 2 {
		t.Fatalf("unexpected result: %+v", r)
	}
}
