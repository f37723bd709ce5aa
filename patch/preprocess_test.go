package patch

import (
	"reflect"
	"testing"
)

func TestPreprocess(t *testing.T) {
	type test struct {
		input string
		want  []statement
	}
	tests := []test{
		{
			input: "# a song\nlead = sine{\n  attack=0.01,\n  release=0.2\n}\n\n@lead [60] 1/16",
			want: []statement{
				{text: "lead = sine{ attack=0.01, release=0.2 }", line: 2},
				{text: "@lead [60] 1/16", line: 7},
			},
		},
		{
			input: "a = gain{}  # trailing comment\nb = gain{}",
			want: []statement{
				{text: "a = gain{}", line: 1},
				{text: "b = gain{}", line: 2},
			},
		},
		{
			input: `s = sample{url="dir/kick#1.wav"}`,
			want: []statement{
				{text: `s = sample{url="dir/kick#1.wav"}`, line: 1},
			},
		},
	}
	for _, test := range tests {
		t.Log(test.input)
		stmts, errs := preprocess(test.input)
		if len(errs) > 0 {
			t.Errorf("unexpected errors: %v", errs)
			continue
		}
		if !reflect.DeepEqual(test.want, stmts) {
			t.Errorf("\nwant: %+v\ngot:  %+v", test.want, stmts)
		}
	}
}

func TestPreprocessUnmatchedBrace(t *testing.T) {
	stmts, errs := preprocess("}\nb = gain{}")
	if len(errs) != 1 {
		t.Fatalf("want 1 error, got %v", errs)
	}
	if want, got := 1, errs[0].Line; want != got {
		t.Errorf("want error on line %d, got %d", want, got)
	}
	want := []statement{{text: "b = gain{}", line: 2}}
	if !reflect.DeepEqual(want, stmts) {
		t.Errorf("\nwant: %+v\ngot:  %+v", want, stmts)
	}
}

func TestPreprocessUnclosedBlock(t *testing.T) {
	stmts, errs := preprocess("a = gain{level=1")
	if len(errs) != 1 {
		t.Fatalf("want 1 error, got %v", errs)
	}
	want := []statement{{text: "a = gain{level=1", line: 1}}
	if !reflect.DeepEqual(want, stmts) {
		t.Errorf("\nwant: %+v\ngot:  %+v", want, stmts)
	}
}
