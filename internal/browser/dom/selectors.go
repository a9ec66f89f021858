// internal/browser/dom/selectors.go
package dom

import (
	"fmt"
	"strings"
)

// GenerateSelectors derives candidate selectors for the node. Keys that do not
// apply are omitted; consumers pick the strategy they trust.
func GenerateSelectors(n *Node) map[string]string {
	selectors := make(map[string]string)
	attr := func(name string) string { return n.Attributes[name] }

	if id := attr("id"); id != "" {
		selectors["css_id"] = "#" + id
	}
	if v := attr("data-testid"); v != "" {
		selectors["testid"] = attrSelector("data-testid", v)
	}
	if v := attr("aria-label"); v != "" {
		selectors["aria"] = attrSelector("aria-label", v)
	}
	if v := attr("placeholder"); v != "" {
		selectors["placeholder"] = attrSelector("placeholder", v)
	}
	if v := attr("name"); v != "" {
		selectors["name"] = attrSelector("name", v)
	}

	if strings.EqualFold(n.TagName, "A") {
		if path := hrefPath(attr("href")); path != "" {
			selectors["href"] = fmt.Sprintf(`a[href*=%s]`, cssString(path))
			selectors["href_xpath"] = fmt.Sprintf("//a[contains(@href,%s)]", xpathLiteral(path))
		}
	}

	var preds []string
	for _, key := range []string{"id", "name", "data-testid"} {
		if v := attr(key); v != "" {
			preds = append(preds, fmt.Sprintf("@%s=%s", key, xpathLiteral(v)))
		}
	}
	if len(preds) > 0 {
		selectors["xpath"] = fmt.Sprintf("//%s[%s]", strings.ToLower(n.TagName), strings.Join(preds, " and "))
	}

	if n.AXName != "" {
		selectors["text"] = n.AXName
	}
	return selectors
}

// hrefPath strips the query string and fragment, which tend to carry session
// or tracking state.
func hrefPath(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return href
}

func attrSelector(name, value string) string {
	return fmt.Sprintf("[%s=%s]", name, cssString(value))
}

// cssString quotes s as a CSS string.
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences: values
// holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
