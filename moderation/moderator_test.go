package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary avoids short words colliding inside regular ones ("he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"spam", "scam", "phishing"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "single word keeps the spacing",
			input:    "this is spam indeed",
			expected: "this is **** indeed",
			words:    []string{"spam"},
		},
		{
			name:     "repeated word",
			input:    "spam spam",
			expected: "**** ****",
			words:    []string{"spam", "spam"},
		},
		{
			name:     "leet speak and inner punctuation",
			input:    "a 5.c.@.m here",
			expected: "a ******* here",
			words:    []string{"scam"},
		},
		{
			name:     "uppercase with dashes",
			input:    "P-H-I-S-H-I-N-G and SPAM",
			expected: "*************** and ****",
			words:    []string{"phishing", "spam"},
		},
		{
			name:     "accents are preserved",
			input:    "été sans spam",
			expected: "été sans ****",
			words:    []string{"spam"},
		},
		{
			name:     "nothing to censor",
			input:    "see you tomorrow",
			expected: "see you tomorrow",
			words:    nil,
		},
		{
			name:     "empty content",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestModerator_Noise_Only_Dictionary(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary made only of noise
	mod, err := NewModerator([]string{"...", ",,,", ""}, replacementChar, log)
	req.NoError(err)

	// When censoring any content
	content, words := mod.Censor("Hello ...")

	// Then nothing is touched
	req.Equal("Hello ...", content)
	req.Nil(words)
}
