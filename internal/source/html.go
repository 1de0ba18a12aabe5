package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// policy drops scripts, styles and embeds before text extraction.
	policy     = bluemonday.UGCPolicy()
	blankLines = regexp.MustCompile(`\n{3,}`)

	imageExtensions = []string{".gif", ".png", ".webp", ".jpg", ".jpeg"}
)

// PlainText converts an HTML fragment to readable plain text. Line breaks
// and block elements become newlines; entities are decoded.
func PlainText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return normalizeText(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(policy.Sanitize(raw)))
	if err != nil {
		return normalizeText(raw)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, blockquote, pre, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return normalizeText(doc.Text())
}

func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\u00a0")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// ExtractImages returns linked images (anchors whose href ends in an image
// extension) followed by inline <img> sources, in document order.
func ExtractImages(raw string) []string {
	if !strings.Contains(raw, "<") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil
	}

	var images []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if isImageLink(href) {
			images = append(images, href)
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); src != "" {
			images = append(images, src)
		}
	})
	return images
}

func isImageLink(href string) bool {
	href = strings.ToLower(href)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(href, ext) {
			return true
		}
	}
	return false
}
