package extract

import (
	"reflect"
	"testing"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			"empty",
			"   ",
			nil,
		},
		{
			"full url",
			"see https://github.com/golang/go for source",
			[]string{"https://github.com/golang/go"},
		},
		{
			"bare domain promoted",
			"I was reading news on netflix.com all day",
			[]string{"https://netflix.com"},
		},
		{
			"mixed full and bare",
			"open github.com then https://github.com/golang and netflix.com",
			[]string{"https://github.com", "https://github.com/golang", "https://netflix.com"},
		},
		{
			"trailing punctuation trimmed",
			"Check https://example.com/docs. Then dev.to, finally reddit.com!",
			[]string{"https://dev.to", "https://example.com/docs", "https://reddit.com"},
		},
		{
			"implausible dotted tokens ignored",
			"upgrade to v1.2 and edit notes.txt",
			nil,
		},
		{
			"duplicates collapse",
			"github.com github.com https://github.com/",
			[]string{"https://github.com"},
		},
		{
			"fragment dropped query kept",
			"https://example.com/a?b=1#section",
			[]string{"https://example.com/a?b=1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractURLs(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"https://Example.COM/", "https://example.com", true},
		{"HTTP://example.com:80/path/", "http://example.com/path", true},
		{"https://example.com:8443/x", "https://example.com:8443/x", true},
		{"https://example.com/a#frag", "https://example.com/a", true},
		{"https://example.com/a?q=1", "https://example.com/a?q=1", true},
		{"ftp://example.com", "", false},
		{"https://localhost/x", "", false},
		{"", "", false},
		{"just words", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeURL(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("NormalizeURL(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}
