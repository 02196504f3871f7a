package normalize

import (
	"reflect"
	"testing"
)

func TestParseFirmName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ParsedName
	}{
		{
			name:  "inline fka",
			input: "Acme LLC f/k/a Apex Advisors LLC",
			want:  ParsedName{Primary: "Acme LLC", FormerNames: []string{"Apex Advisors LLC"}},
		},
		{
			name:  "parenthesised dba",
			input: "Acme Wealth (d/b/a Acme Private Client)",
			want:  ParsedName{Primary: "Acme Wealth", DBAs: []string{"Acme Private Client"}},
		},
		{
			name:  "former and dba",
			input: "Beta Partners, formerly known as Gamma Partners; d/b/a Beta PC",
			want: ParsedName{
				Primary:     "Beta Partners",
				FormerNames: []string{"Gamma Partners"},
				DBAs:        []string{"Beta PC"},
			},
		},
		{
			name:  "dotted fka",
			input: "Delta Inc. f.k.a. Epsilon Inc.",
			want:  ParsedName{Primary: "Delta Inc.", FormerNames: []string{"Epsilon Inc."}},
		},
		{
			name:  "leading keyword is part of the name",
			input: "DBA Capital Group",
			want:  ParsedName{Primary: "DBA Capital Group"},
		},
		{
			name:  "plain",
			input: "Morgan Stanley",
			want:  ParsedName{Primary: "Morgan Stanley"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFirmName(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseFirmName(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsedNameVariants(t *testing.T) {
	p := ParsedName{
		Primary:     "Acme",
		FormerNames: []string{"Apex", "Acme"},
		DBAs:        []string{"Acme Private"},
	}
	want := []string{"Acme", "Apex", "Acme Private"}
	if got := p.Variants(); !reflect.DeepEqual(got, want) {
		t.Errorf("Variants() = %v, want %v", got, want)
	}
}
