package domain

import "testing"

func TestBandFor(t *testing.T) {
	tests := []struct {
		name      string
		rating    float64
		wantName  string
		wantStars int
	}{
		{"expert floor", 1750, "Expert", 5},
		{"above ceiling", 1800, "Expert", 5},
		{"strong but not expert", 1700, "Proficient", 4},
		{"proficient floor", 1650, "Proficient", 4},
		{"default rating", 1500, "Competent", 3},
		{"just below competent", 1499, "Developing", 2},
		{"developing floor", 1350, "Developing", 2},
		{"novice", 1300, "Novice", 1},
		{"rating floor", RatingMin, "Novice", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BandFor(tt.rating)
			if b.Name != tt.wantName || b.Stars != tt.wantStars {
				t.Errorf("BandFor(%.0f) = %s/%d stars; want %s/%d", tt.rating, b.Name, b.Stars, tt.wantName, tt.wantStars)
			}
		})
	}
}

func TestBandsOrderedDescending(t *testing.T) {
	bands := Bands()
	for i := 1; i < len(bands); i++ {
		if bands[i].Min >= bands[i-1].Min {
			t.Errorf("band %q floor %.0f not below %q floor %.0f", bands[i].Name, bands[i].Min, bands[i-1].Name, bands[i-1].Min)
		}
	}
}
