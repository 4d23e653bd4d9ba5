package utils

import "testing"

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		limit   int
		seconds int
		wantErr bool
	}{
		{"200/10s", 200, 10, false},
		{"5/1m", 5, 60, false},
		{" 1/2h ", 1, 7200, false},
		{"10", 0, 0, true},
		{"x/10s", 0, 0, true},
		{"10/s", 0, 0, true},
		{"10/5d", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			limit, seconds, err := ParseRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate(%q) err = %v", tt.in, err)
			}
			if limit != tt.limit || seconds != tt.seconds {
				t.Errorf("ParseRate(%q) = %d, %d", tt.in, limit, seconds)
			}
		})
	}
}
