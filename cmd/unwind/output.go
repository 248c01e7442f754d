package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
)

var outputFormatsCompletion = []string{"json", "text"}

// formatOutput renders a value in the requested format. With no format,
// nil prints nothing and anything JSON cannot encode falls back to text.
func formatOutput(value any, format string) (string, error) {
	switch strings.ToLower(format) {
	case "text":
		return fmt.Sprintf("%v", value), nil
	case "json":
		out, err := formatJSON(value)
		return string(out), err
	case "":
		if value == nil {
			return "", nil
		}
		if out, err := formatJSON(value); err == nil {
			return string(out), nil
		}
		return fmt.Sprintf("%v", value), nil
	}
	return "", fmt.Errorf("unknown output format: %s", format)
}

func formatJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case error:
		value = v.Error()
	case fmt.Stringer:
		value = v.String()
	}
	if color.NoColor {
		return json.MarshalIndent(value, "", "  ")
	}
	return prettyjson.Marshal(value)
}
