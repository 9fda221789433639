package engine

import "testing"

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"direct", `{"story":"a"}`, "a", false},
		{"fence with language", "```json\n{\"story\":\"b\"}\n```", "b", false},
		{"fence without language", "```\n{\"story\":\"c\"}\n```", "c", false},
		{"leading prose", `Sure! {"story":"d"}`, "d", false},
		{"empty", "   ", "", true},
		{"no object", "no json here", "", true},
		{"broken object", `{"story":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out refineResult
			err := decodeModelJSON(tt.in, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if out.Story != tt.want {
				t.Errorf("story = %q, want %q", out.Story, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if got := snippet(string(long)); len(got) != 163 {
		t.Errorf("len = %d, want 163", len(got))
	}
	if got := snippet("a\n  b"); got != "a b" {
		t.Errorf("snippet = %q", got)
	}
}
