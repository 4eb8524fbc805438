package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		number string
		region string
		want   string
	}{
		{"national indian format", "098765 43210", "IN", "+919876543210"},
		{"already e164", "+919876543210", "IN", "+919876543210"},
		{"e164 overrides region", "+14155552671", "IN", "+14155552671"},
		{"us national format", "(415) 555-2671", "US", "+14155552671"},
		{"garbage passes through", "not-a-number", "IN", "not-a-number"},
		{"too short passes through", "12", "IN", "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.number, tt.region); got != tt.want {
				t.Errorf("Normalize(%q, %q) = %q, want %q", tt.number, tt.region, got, tt.want)
			}
		})
	}
}
