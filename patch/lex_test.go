package patch

import "testing"

func TestLexer(t *testing.T) {
	type test struct {
		input  string
		expect []token
	}
	tests := []test{
		{
			input: "lead = sine{attack=0.01} -> OUT",
			expect: []token{
				{typ: typeIdent, text: "lead"},
				{typ: typeAssign, text: "="},
				{typ: typeIdent, text: "sine"},
				{typ: typeLeftBrace, text: "{"},
				{typ: typeIdent, text: "attack"},
				{typ: typeAssign, text: "="},
				{typ: typeFloat, text: "0.01"},
				{typ: typeRightBrace, text: "}"},
				{typ: typeArrow, text: "->"},
				{typ: typeIdent, text: "OUT"},
				{typ: typeEOF},
			},
		},
		{
			input: "@lead [60 - - _ 440Hz -] 1/8",
			expect: []token{
				{typ: typeAt, text: "@"},
				{typ: typeIdent, text: "lead"},
				{typ: typeLeftBracket, text: "["},
				{typ: typeInt, text: "60"},
				{typ: typeTie, text: "-"},
				{typ: typeTie, text: "-"},
				{typ: typeRest, text: "_"},
				{typ: typeFreq, text: "440Hz"},
				{typ: typeTie, text: "-"},
				{typ: typeRightBracket, text: "]"},
				{typ: typeInt, text: "1"},
				{typ: typeSlash, text: "/"},
				{typ: typeInt, text: "8"},
				{typ: typeEOF},
			},
		},
		{
			input: "gain{level=-6dB}",
			expect: []token{
				{typ: typeIdent, text: "gain"},
				{typ: typeLeftBrace, text: "{"},
				{typ: typeIdent, text: "level"},
				{typ: typeAssign, text: "="},
				{typ: typeDB, text: "-6dB"},
				{typ: typeRightBrace, text: "}"},
				{typ: typeEOF},
			},
		},
		{
			input: "(60 64 67)@0.8?0.5",
			expect: []token{
				{typ: typeLeftParen, text: "("},
				{typ: typeInt, text: "60"},
				{typ: typeInt, text: "64"},
				{typ: typeInt, text: "67"},
				{typ: typeRightParen, text: ")"},
				{typ: typeAt, text: "@"},
				{typ: typeFloat, text: "0.8"},
				{typ: typeQuery, text: "?"},
				{typ: typeFloat, text: "0.5"},
				{typ: typeEOF},
			},
		},
		{
			input: "fx[2].frequency",
			expect: []token{
				{typ: typeIdent, text: "fx"},
				{typ: typeLeftBracket, text: "["},
				{typ: typeInt, text: "2"},
				{typ: typeRightBracket, text: "]"},
				{typ: typeDot, text: "."},
				{typ: typeIdent, text: "frequency"},
				{typ: typeEOF},
			},
		},
		{
			input: "a ++ _b",
			expect: []token{
				{typ: typeIdent, text: "a"},
				{typ: typeChain, text: "++"},
				{typ: typeIdent, text: "_b"},
				{typ: typeEOF},
			},
		},
		{
			input: `kick_2 = sample{url="a b.wav"}`,
			expect: []token{
				{typ: typeIdent, text: "kick_2"},
				{typ: typeAssign, text: "="},
				{typ: typeIdent, text: "sample"},
				{typ: typeLeftBrace, text: "{"},
				{typ: typeIdent, text: "url"},
				{typ: typeAssign, text: "="},
				{typ: typeString, text: `"a b.wav"`},
				{typ: typeRightBrace, text: "}"},
				{typ: typeEOF},
			},
		},
		{
			input: "-.5 2.5hz",
			expect: []token{
				{typ: typeFloat, text: "-.5"},
				{typ: typeFreq, text: "2.5hz"},
				{typ: typeEOF},
			},
		},
	}
	for _, test := range tests {
		t.Log(test.input)
		tokens, err := lex(test.input)
		if err != nil {
			t.Errorf("unexpected lex error: %v", err)
			continue
		}
		if len(tokens) != len(test.expect) {
			t.Fatalf("token mismatch: \nwant: %+v, \ngot:  %+v", test.expect, tokens)
		}
		for i, got := range tokens {
			want := test.expect[i]
			if want.typ != got.typ {
				t.Errorf("wrong type: want %v, got %v", want, got)
			}
			if want.text != got.text {
				t.Errorf("wrong text: want %v, got %v", want, got)
			}
		}
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{
		"12x",
		"4.2.3",
		"6d",
		"440H",
		"a + b",
		`"unterminated`,
	} {
		_, err := lex(input)
		if err == nil {
			t.Errorf("expected error for input: %q", input)
		}
	}
}
