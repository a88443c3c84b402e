package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/model"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

// Field keys.
const (
	FieldSourceURL      = "source_url"
	FieldRegion         = "region"
	FieldFamilyName     = "family_name"
	FieldLife           = "life"
	FieldCharacterCount = "characters.count"
)

const (
	communityPrefix     = "community."
	characterKeyFormat  = "character.%d.%s"
	profileBanner       = "Adventurer Profile"
	headingCommunity    = "Community Activities"
	headingLife         = "Life"
	headingCharacters   = "Created Characters"
	mainCharacterMarker = "Main Character"
	profileWindow       = 15
	itemSeparator       = "  "
	lifeSeparator       = "; "
)

var (
	// ErrNoProfile is returned when the page has no recognizable profile.
	ErrNoProfile = errors.New("no adventurer profile found")

	regionPattern    = regexp.MustCompile(`^[A-Z]{2,3}$`)
	communityPattern = regexp.MustCompile(`^(.*?)(?:\s{2,}|\s:\s)(.+)$`)
	classPattern     = regexp.MustCompile(`(?i)^(.+?)\s+Lv\.?\s+(.+)$`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// Extractor implements fetch.Extractor for profile pages.
type Extractor struct {
	required []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRequiredFields adds fields that must be present and non-empty.
// family_name is always required.
func WithRequiredFields(fields ...string) Option {
	return func(e *Extractor) {
		e.required = append(e.required, fields...)
	}
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{required: []string{FieldFamilyName}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses doc. Missing required fields yield a schema mismatch.
func (e *Extractor) Extract(doc *fetch.Document) (map[string]string, error) {
	if doc == nil || strings.TrimSpace(doc.HTML) == "" {
		return nil, model.NewKindError(model.KindSchemaMismatch, ErrNoProfile)
	}

	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	if err != nil {
		return nil, model.Errorf(model.KindSchemaMismatch, "failed to parse page: %v", err)
	}

	fields := map[string]string{FieldSourceURL: doc.URL}
	fold := newFolder()

	if region, family := findIdentity(textLines(d.Find("body")), fold); family != "" {
		fields[FieldRegion] = region
		fields[FieldFamilyName] = family
	}

	for _, item := range sectionItems(d, headingCommunity, fold) {
		if m := communityPattern.FindStringSubmatch(item); m != nil {
			fields[communityPrefix+clean(m[1])] = clean(m[2])
		} else {
			fields[communityPrefix+clean(item)] = ""
		}
	}

	if life := sectionItems(d, headingLife, fold); len(life) > 0 {
		cleaned := make([]string, len(life))
		for i, l := range life {
			cleaned[i] = clean(l)
		}
		fields[FieldLife] = strings.Join(cleaned, lifeSeparator)
	}

	chars := parseCharacters(sectionItems(d, headingCharacters, fold))
	fields[FieldCharacterCount] = strconv.Itoa(len(chars))
	for i, c := range chars {
		n := i + 1
		fields[fmt.Sprintf(characterKeyFormat, n, "name")] = c.name
		fields[fmt.Sprintf(characterKeyFormat, n, "class")] = c.class
		fields[fmt.Sprintf(characterKeyFormat, n, "level")] = c.level
		fields[fmt.Sprintf(characterKeyFormat, n, "main")] = strconv.FormatBool(c.main)
	}

	for _, key := range e.required {
		if strings.TrimSpace(fields[key]) == "" {
			return nil, model.Errorf(model.KindSchemaMismatch, "required field %q not found on %s", key, doc.URL)
		}
	}
	return fields, nil
}

type character struct {
	name  string
	class string
	level string
	main  bool
}

// parseCharacters reads the created characters list, which alternates a
// name entry and a "<class> Lv <level>" entry.
func parseCharacters(items []string) []character {
	var out []character
	for i := 0; i < len(items); i += 2 {
		nameLine := items[i]
		c := character{
			main: strings.Contains(nameLine, mainCharacterMarker),
			name: clean(strings.ReplaceAll(nameLine, mainCharacterMarker, "")),
		}
		if i+1 < len(items) {
			if m := classPattern.FindStringSubmatch(clean(items[i+1])); m != nil {
				c.class = clean(m[1])
				c.level = clean(m[2])
			}
		}
		if c.name != "" {
			out = append(out, c)
		}
	}
	return out
}

// findIdentity looks for the region code and family name shortly after
// the profile banner.
func findIdentity(lines []string, fold *folder) (region, family string) {
	start := -1
	for i, l := range lines {
		if fold.equal(l, profileBanner) {
			start = i
			break
		}
	}
	if start < 0 {
		return "", ""
	}

	window := lines[start:min(len(lines), start+profileWindow)]
	for i := 0; i+1 < len(window); i++ {
		if regionPattern.MatchString(window[i]) {
			return window[i], window[i+1]
		}
	}
	return "", ""
}

// sectionItems returns the text of the list items between the heading
// named heading and the next heading.
func sectionItems(d *goquery.Document, heading string, fold *folder) []string {
	var (
		items      []string
		collecting bool
	)
	d.Find("h1, h2, h3, h4, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "li" {
			if collecting {
				return false
			}
			collecting = fold.equal(clean(s.Text()), heading)
			return true
		}
		if collecting {
			if t := itemText(s); t != "" {
				items = append(items, t)
			}
		}
		return true
	})
	return items
}

// itemText joins the text nodes of s, separating nodes from different
// elements with two spaces so label and value stay distinguishable.
func itemText(s *goquery.Selection) string {
	var parts []string
	for _, n := range textNodes(s) {
		if t := clean(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, itemSeparator)
}

// textLines returns the non-empty visible text nodes under s in order.
func textLines(s *goquery.Selection) []string {
	var lines []string
	for _, n := range textNodes(s) {
		if t := clean(n); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

func textNodes(s *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			out = append(out, n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return out
}

func clean(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// folder compares strings under Unicode case folding. Not safe for
// concurrent use; Extract creates one per call.
type folder struct {
	c cases.Caser
}

func newFolder() *folder {
	return &folder{c: cases.Fold()}
}

func (f *folder) equal(a, b string) bool {
	return f.c.String(a) == f.c.String(b)
}
