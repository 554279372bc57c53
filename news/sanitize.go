package news

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sanitize reduces an HTML fragment to its visible text. Any script
// element discards the whole fragment and returns "".
func Sanitize(fragment string) string {
	if fragment == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	var (
		b       strings.Builder
		inStyle int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return ""
			}
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script:
				return ""
			case atom.Style:
				if tt == html.StartTagToken {
					inStyle++
				}
			case atom.Br, atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Style:
				if inStyle > 0 {
					inStyle--
				}
			case atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		case html.TextToken:
			if inStyle == 0 {
				b.Write(z.Text())
			}
		}
	}
}
