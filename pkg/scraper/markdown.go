package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// ToMarkdown renders a selection as ATX-heading markdown. It covers the
// elements course pages use: headings, paragraphs, lists, code, links, tables
// as plain rows; everything else contributes its text.
func ToMarkdown(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		writeChildren(&b, s)
	})
	return tidy(b.String())
}

// tidy trims lines outside code fences and squeezes blank runs.
func tidy(md string) string {
	lines := strings.Split(md, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			lines[i] = strings.TrimSpace(line)
			continue
		}
		if !inFence {
			lines[i] = strings.TrimSpace(line)
		}
	}
	out := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out) + "\n"
}

func writeChildren(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		writeNode(b, c)
	})
}

func writeNode(b *strings.Builder, s *goquery.Selection) {
	switch name := goquery.NodeName(s); name {
	case "#text":
		b.WriteString(collapseSpace(s.Text()))
	case "script", "style", "noscript", "nav", "footer", "button":
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(name[1] - '0')
		b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
		b.WriteString(strings.TrimSpace(inline(s)))
		b.WriteString("\n\n")
	case "p", "div", "section", "article", "main", "blockquote", "table", "thead", "tbody":
		b.WriteString("\n\n")
		writeChildren(b, s)
		b.WriteString("\n\n")
	case "tr":
		var cells []string
		s.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(inline(cell)))
		})
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	case "ul", "ol":
		b.WriteString("\n")
		s.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			marker := "- "
			if name == "ol" {
				marker = strconv.Itoa(i+1) + ". "
			}
			b.WriteString(marker + strings.TrimSpace(inline(li)) + "\n")
		})
		b.WriteString("\n")
	case "pre":
		lang := ""
		if f := strings.Fields(s.Find("code").AttrOr("class", "")); len(f) > 0 {
			lang = strings.TrimPrefix(f[0], "language-")
		}
		b.WriteString("\n\n```" + lang + "\n")
		b.WriteString(strings.TrimRight(s.Text(), "\n"))
		b.WriteString("\n```\n\n")
	case "br":
		b.WriteString("\n")
	case "hr":
		b.WriteString("\n\n---\n\n")
	default:
		inlineNode(b, s)
	}
}

// inline renders phrasing content: links, code spans and emphasis.
func inline(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		inlineNode(&b, c)
	})
	return b.String()
}

func inlineNode(b *strings.Builder, c *goquery.Selection) {
	switch goquery.NodeName(c) {
	case "#text":
		b.WriteString(collapseSpace(c.Text()))
	case "a":
		text := strings.TrimSpace(inline(c))
		href, _ := c.Attr("href")
		if href != "" && (!strings.HasPrefix(href, "#") || strings.HasPrefix(href, "#/")) {
			b.WriteString("[" + text + "](" + href + ")")
		} else {
			b.WriteString(text)
		}
	case "code":
		b.WriteString("`" + c.Text() + "`")
	case "strong", "b":
		b.WriteString("**" + inline(c) + "**")
	case "em", "i":
		b.WriteString("*" + inline(c) + "*")
	case "br":
		b.WriteString("\n")
	case "script", "style", "img", "button":
	case "ul", "ol", "pre", "p", "div", "table":
		writeNode(b, c)
	default:
		b.WriteString(inline(c))
	}
}

func collapseSpace(s string) string {
	if strings.TrimSpace(s) == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	lead := strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\n") || strings.HasPrefix(s, "\t")
	trail := strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\t")
	out := strings.Join(strings.Fields(s), " ")
	if lead {
		out = " " + out
	}
	if trail {
		out += " "
	}
	return out
}
