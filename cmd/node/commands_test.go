package node

import (
	"reflect"
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		arg  string
		want any
	}{
		{`42`, float64(42)},
		{`true`, true},
		{`"quoted"`, "quoted"},
		{`plain text`, "plain text"},
		{`{"a":[1,2]}`, map[string]any{"a": []any{float64(1), float64(2)}}},
	}
	for _, tt := range tests {
		if got := parseValue(tt.arg); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.arg, got, tt.want)
		}
	}
	if rootArg("/") != "" || rootArg("a/b") != "a/b" {
		t.Errorf("Unexpected root argument mapping")
	}
}
