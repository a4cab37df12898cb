// Package markers scans rendered platform HTML for logged-in indicators and
// extracts best-effort user info. It understands the small selector subset the
// platform pages need: "tag", ".class" and "[attr=value]".
package markers

import (
	"strings"

	"golang.org/x/net/html"
)

// Config names the selectors that identify an authenticated page.
type Config struct {
	// LoggedIn matches any element whose presence means a session exists.
	LoggedIn []string
	// Nickname matches elements whose text is the display name.
	Nickname []string
	// Avatar matches elements whose src attribute is the avatar URL.
	Avatar []string
	// ErrorText matches elements carrying a visible failure message.
	ErrorText []string
}

// Result is the outcome of a scan.
type Result struct {
	LoggedIn  bool
	Nickname  string
	Avatar    string
	ErrorText string
}

// Scan parses doc and reports logged-in markers. A parse failure fails closed:
// the zero Result is returned.
func Scan(doc string, cfg Config) Result {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Result{}
	}

	var res Result
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if !res.LoggedIn && matchesAny(n, cfg.LoggedIn) {
			res.LoggedIn = true
		}
		if res.Nickname == "" && matchesAny(n, cfg.Nickname) {
			res.Nickname = strings.TrimSpace(text(n))
		}
		if res.Avatar == "" && matchesAny(n, cfg.Avatar) {
			res.Avatar = attr(n, "src")
		}
		if res.ErrorText == "" && matchesAny(n, cfg.ErrorText) {
			res.ErrorText = strings.TrimSpace(text(n))
		}
	})
	return res
}

// HasElement reports whether any element in doc matches one of the selectors.
func HasElement(doc string, selectors []string) bool {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return false
	}
	found := false
	walk(root, func(n *html.Node) {
		if !found && n.Type == html.ElementNode && matchesAny(n, selectors) {
			found = true
		}
	})
	return found
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func matchesAny(n *html.Node, selectors []string) bool {
	for _, sel := range selectors {
		if matches(n, sel) {
			return true
		}
	}
	return false
}

func matches(n *html.Node, sel string) bool {
	sel = strings.TrimSpace(sel)
	switch {
	case sel == "":
		return false
	case strings.HasPrefix(sel, "."):
		return hasClass(n, sel[1:])
	case strings.HasPrefix(sel, "[") && strings.HasSuffix(sel, "]"):
		name, value, ok := strings.Cut(strings.Trim(sel, "[]"), "=")
		if !ok {
			return attr(n, name) != ""
		}
		return attr(n, name) == strings.Trim(value, `"`)
	default:
		return n.Data == sel
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}
