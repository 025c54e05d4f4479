package profile_test

import (
	"testing"

	"github.com/dominicskywalkr/VAICCS-sub000/pkg/profile"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces", "Alice Smith", "alice_smith"},
		{"punctuation", "Dr. Who?", "dr__who_"},
		{"keeps dash and underscore", "MARY-go_round", "mary-go_round"},
		{"non ascii", "héllo", "h_llo"},
		{"digits", "Agent 47", "agent_47"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := profile.Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
