package sanitize

import (
	"strings"
	"testing"
)

func TestHTML_StripsDangerousMarkup(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		mustNot []string
		must    []string
	}{
		{
			name:    "script tag",
			input:   `<p>Hello</p><script>alert(1)</script>`,
			mustNot: []string{"<script", "alert(1)"},
			must:    []string{"<p>Hello</p>"},
		},
		{
			name:    "event handler",
			input:   `<img src="/a.png" onerror="steal()">`,
			mustNot: []string{"onerror", "steal"},
		},
		{
			name:    "javascript url",
			input:   `<a href="javascript:alert(1)">click</a>`,
			mustNot: []string{"javascript:"},
			must:    []string{"click"},
		},
		{
			name:  "formatting kept",
			input: `<p class="lead"><strong>Big</strong> <em>news</em></p><table><tr><td colspan="2">x</td></tr></table>`,
			must:  []string{`class="lead"`, "<strong>Big</strong>", "<em>news</em>", `colspan="2"`},
		},
		{
			name:  "external link gets target and rel",
			input: `<a href="https://example.com/report">report</a>`,
			must:  []string{`target="_blank"`, "noreferrer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTML(tt.input)
			for _, s := range tt.mustNot {
				if strings.Contains(got, s) {
					t.Errorf("output %q must not contain %q", got, s)
				}
			}
			for _, s := range tt.must {
				if !strings.Contains(got, s) {
					t.Errorf("output %q must contain %q", got, s)
				}
			}
		})
	}
}

func TestHTML_Empty(t *testing.T) {
	if got := HTML(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestText(t *testing.T) {
	got := Text("<h2>Title</h2><p>First &amp; second</p>\n<p>third</p>")
	if got != "Title First & second third" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	body := "<p>Our new office opens in Zürich next month with room for forty people.</p>"

	got := Excerpt(body, 30)
	if got != "Our new office opens in Zürich…" {
		t.Errorf("unexpected excerpt %q", got)
	}

	if got := Excerpt("<p>short</p>", 30); got != "short" {
		t.Errorf("unexpected excerpt %q", got)
	}
}
