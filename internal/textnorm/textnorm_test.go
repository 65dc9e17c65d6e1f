package textnorm

import (
	"math/rand"
	"testing"
)

func TestNormalize_SingleEmotionSegment(t *testing.T) {
	got := Normalize("<|zh|><|HAPPY|>你好")
	want := "你好😊"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNormalize_NoSpeechEventUnknownBecomesQuestionMark(t *testing.T) {
	got := Normalize("<|nospeech|><|Event_UNK|>")
	if got != "❓" {
		t.Fatalf("got %q want ❓", got)
	}
}

func TestNormalize_Idempotence(t *testing.T) {
	inputs := []string{
		"<|zh|><|HAPPY|>你好",
		"<|en|><|SAD|>hello world",
		"<|zh|><|Laughter|>哈哈<|en|><|Applause|>nice",
		"plain text no tokens",
		"",
		"<|nospeech|><|Event_UNK|>",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestNormalize_IdempotenceFuzzed(t *testing.T) {
	tokens := []string{
		"<|zh|>", "<|en|>", "<|HAPPY|>", "<|SAD|>", "<|BGM|>", "<|Laughter|>",
		"<|nospeech|>", "<|Event_UNK|>", "你好", "hello", " ", "123",
	}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		n := rng.Intn(6)
		s := ""
		for j := 0; j < n; j++ {
			s += tokens[rng.Intn(len(tokens))]
		}
		once := Normalize(s)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: once=%q twice=%q", s, once, twice)
		}
	}
}

func TestContainsChineseEnglishNumber(t *testing.T) {
	cases := map[string]bool{
		"你好":   true,
		"hello": true,
		"123":   true,
		"😊":     false,
		"":      false,
		"   ":   false,
	}
	for in, want := range cases {
		if got := ContainsChineseEnglishNumber(in); got != want {
			t.Fatalf("ContainsChineseEnglishNumber(%q) = %v, want %v", in, got, want)
		}
	}
}
