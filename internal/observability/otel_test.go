package observability

import "testing"

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc , broken, =x, team=chat ")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "chat" {
		t.Fatalf("unexpected headers: %#v", got)
	}
	if parseHeaders("  ") != nil {
		t.Fatalf("blank input should yield nil")
	}
}

func TestClampRatio(t *testing.T) {
	cases := map[float64]float64{0: 0.1, -1: 0.1, 0.5: 0.5, 3: 1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
