package bridge

import (
	"testing"

	"github.com/dignmodahau/idea-claude-code-gui/internal/testutil"
)

func TestMapModel(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"claude-opus-4-20250514", "opus"},
		{"OPUS", "opus"},
		{"claude-3-5-haiku-20241022", "haiku"},
		{"Haiku-latest", "haiku"},
		{"claude-sonnet-4-20250514", "sonnet"},
		{"anything-else", "sonnet"},
		{"", "sonnet"},
	}
	for _, tc := range cases {
		testutil.RequireEqual(t, MapModel(tc.id), tc.want, "MapModel("+tc.id+")")
	}
}

func TestMapAPIModel(t *testing.T) {
	testutil.RequireEqual(t, MapAPIModel("claude-3-opus-20240229"), "claude-3-opus-20240229",
		"full ids must pass through")
	testutil.RequireEqual(t, MapAPIModel("opus"), apiModelOpus, "opus tier")
	testutil.RequireEqual(t, MapAPIModel("haiku"), apiModelHaiku, "haiku tier")
	testutil.RequireEqual(t, MapAPIModel(""), apiModelSonnet, "default tier")
}
