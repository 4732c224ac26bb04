package services

import (
	"context"
	"errors"
	"testing"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"inline math delimiters", "The answer is $x+1$", "The answer is x+1"},
		{"latex control characters", "\\frac{a}{b}", "fracab"},
		{"markdown punctuation", "*bold* and #heading and _em_ and `code`", "bold and heading and em and code"},
		{"plain text untouched", "two plus two is four", "two plus two is four"},
		{"surrounding space trimmed", "  $$x$$  ", "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripMarkup(tc.input); got != tc.expected {
				t.Errorf("StripMarkup(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSynthesizerUnsupportedWithoutKey(t *testing.T) {
	s := NewSynthesizer("", "")

	if s.Supported() {
		t.Error("Synthesizer without an API key must report unsupported")
	}

	_, _, err := s.Synthesize(context.Background(), "hello")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestSynthesizerSupportedWithKey(t *testing.T) {
	s := NewSynthesizer("key", "voice")
	if !s.Supported() {
		t.Error("Synthesizer with an API key should report supported")
	}
}
