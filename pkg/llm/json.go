package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// thinkTagPattern matches the <think>...</think> preamble of reasoning models.
	thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

	// fencePattern captures the body of the first markdown code block.
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\n?(.*?)```")
)

// ExtractJSON returns the first complete JSON object or array in an LLM
// response. Reasoning preambles and markdown fences are removed first, and
// brace-delimited prose that is not valid JSON is skipped.
func ExtractJSON(response string) (string, error) {
	s := thinkTagPattern.ReplaceAllString(response, "")
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return s[i : i+int(dec.InputOffset())], nil
		}
	}
	return "", errors.New("no valid JSON found in response")
}

// ParseJSONResponse extracts JSON from a response and decodes it into T.
// Unknown fields are rejected so a reply in the wrong shape fails instead of
// decoding to a zero value.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}
