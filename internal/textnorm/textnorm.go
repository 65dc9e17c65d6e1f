// Package textnorm strips the control tokens a SenseVoice-family ASR model
// embeds in its raw output (language, emotion, and acoustic-event tags) and
// renders them as emoji, following the token vocabulary and placement rules
// the model's reference decoder uses.
package textnorm

import (
	"regexp"
	"strings"
)

type tokenValue struct {
	Token string
	Value string
}

// Declaration order matters: format_str_v2's mode-emotion tie-break and the
// event-emoji prepend order both depend on iterating these in the order the
// model's vocabulary lists them.
var emoDict = []tokenValue{
	{"<|HAPPY|>", "😊"}, {"<|SAD|>", "😔"}, {"<|ANGRY|>", "😡"}, {"<|NEUTRAL|>", ""},
	{"<|FEARFUL|>", "😰"}, {"<|DISGUSTED|>", "🤢"}, {"<|SURPRISED|>", "😮"},
}

var eventDict = []tokenValue{
	{"<|BGM|>", "🎼"}, {"<|Speech|>", ""}, {"<|Applause|>", "👏"}, {"<|Laughter|>", "😀"},
	{"<|Cry|>", "😭"}, {"<|Sneeze|>", "🤧"}, {"<|Breath|>", ""}, {"<|Cough|>", "🤧"},
}

var emojiDict = []tokenValue{
	{"<|nospeech|><|Event_UNK|>", "❓"}, {"<|zh|>", ""}, {"<|en|>", ""}, {"<|yue|>", ""},
	{"<|ja|>", ""}, {"<|ko|>", ""}, {"<|nospeech|>", ""}, {"<|HAPPY|>", "😊"}, {"<|SAD|>", "😔"},
	{"<|ANGRY|>", "😡"}, {"<|NEUTRAL|>", ""}, {"<|BGM|>", "🎼"}, {"<|Speech|>", ""},
	{"<|Applause|>", "👏"}, {"<|Laughter|>", "😀"}, {"<|FEARFUL|>", "😰"},
	{"<|DISGUSTED|>", "🤢"}, {"<|SURPRISED|>", "😮"}, {"<|Cry|>", "😭"}, {"<|EMO_UNKNOWN|>", ""},
	{"<|Sneeze|>", "🤧"}, {"<|Breath|>", ""}, {"<|Cough|>", "😷"}, {"<|Sing|>", ""},
	{"<|Speech_Noise|>", ""}, {"<|withitn|>", ""}, {"<|woitn|>", ""}, {"<|GBG|>", ""}, {"<|Event_UNK|>", ""},
}

var langTokens = []string{"<|zh|>", "<|en|>", "<|yue|>", "<|ja|>", "<|ko|>", "<|nospeech|>"}

var emoSet = map[rune]bool{'😊': true, '😔': true, '😡': true, '😰': true, '🤢': true, '😮': true}
var eventSet = map[rune]bool{'🎼': true, '👏': true, '😀': true, '😭': true, '🤧': true, '😷': true}

var chineseEnglishNumber = regexp.MustCompile(`[\x{4e00}-\x{9fff}A-Za-z0-9]`)

// ContainsChineseEnglishNumber reports whether s has at least one CJK
// ideograph, ASCII letter, or digit.
func ContainsChineseEnglishNumber(s string) bool {
	return chineseEnglishNumber.MatchString(s)
}

// Normalize renders raw control-token ASR output into display text with
// event/emotion emoji, dropping language-separator tokens. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "<|nospeech|><|Event_UNK|>", "❓")
	for _, lang := range langTokens {
		s = strings.ReplaceAll(s, lang, "<|lang|>")
	}

	parts := strings.Split(s, "<|lang|>")
	for i, p := range parts {
		parts[i] = strings.Trim(formatSegment(p), " ")
	}

	newS := " " + parts[0]
	curEvent, curEventOK := leadingEvent(newS)

	for i := 1; i < len(parts); i++ {
		p := parts[i]
		if len(p) == 0 {
			continue
		}
		ev, evOK := leadingEvent(p)
		if evOK && curEventOK && ev == curEvent {
			_, size := firstRune(p)
			p = p[size:]
		}
		curEvent, curEventOK = leadingEvent(p)

		emo, emoOK := trailingEmo(p)
		prevEmo, prevEmoOK := trailingEmo(newS)
		if emoOK && prevEmoOK && emo == prevEmo {
			newS = dropLastRune(newS)
		}
		newS += strings.TrimSpace(p)
	}

	newS = strings.ReplaceAll(newS, "The.", " ")
	return strings.TrimSpace(newS)
}

// formatSegment is format_str_v2: strip every known control token out of the
// segment while tallying counts, append the mode emotion's emoji, prepend
// every present event's emoji (in vocabulary order), then collapse spaces
// that got left behind around emoji.
func formatSegment(s string) string {
	counts := make(map[string]int, len(emojiDict))
	for _, tv := range emojiDict {
		counts[tv.Token] = strings.Count(s, tv.Token)
		s = strings.ReplaceAll(s, tv.Token, "")
	}

	emo := "<|NEUTRAL|>"
	for _, tv := range emoDict {
		if counts[tv.Token] > counts[emo] {
			emo = tv.Token
		}
	}

	for _, tv := range eventDict {
		if counts[tv.Token] > 0 {
			s = eventValue(tv.Token) + s
		}
	}
	s += emoValue(emo)

	for r := range mergeRuneSets(emoSet, eventSet) {
		emoji := string(r)
		s = strings.ReplaceAll(s, " "+emoji, emoji)
		s = strings.ReplaceAll(s, emoji+" ", emoji)
	}
	return strings.TrimSpace(s)
}

func eventValue(token string) string {
	for _, tv := range eventDict {
		if tv.Token == token {
			return tv.Value
		}
	}
	return ""
}

func emoValue(token string) string {
	for _, tv := range emoDict {
		if tv.Token == token {
			return tv.Value
		}
	}
	return ""
}

func mergeRuneSets(a, b map[rune]bool) map[rune]bool {
	out := make(map[rune]bool, len(a)+len(b))
	for r := range a {
		out[r] = true
	}
	for r := range b {
		out[r] = true
	}
	return out
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}

func leadingEvent(s string) (rune, bool) {
	r, _ := firstRune(s)
	return r, eventSet[r]
}

func trailingEmo(s string) (rune, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}
	last := runes[len(runes)-1]
	return last, emoSet[last]
}

func dropLastRune(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return string(runes[:len(runes)-1])
}
