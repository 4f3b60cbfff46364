package planner

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/go-scripts/examcrawl/internal/queue"
	"github.com/go-scripts/examcrawl/internal/site"
)

// discoverLinks collects the absolute URLs of anchors in html that match m,
// de-duplicated and in document order. Anchor text becomes the label.
func discoverLinks(html, pageURL string, m site.Matcher, requireText bool) (*queue.Queue, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(base, href)
		if abs == "" || !m.Match(abs) {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if requireText && text == "" {
			return
		}
		q.Add(abs, text)
	})
	return q, nil
}

// resolve makes href absolute against base and strips the fragment. Non-http
// schemes resolve to "".
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

type pageLink struct {
	url   string
	order int
}

// orderPages drains q and sorts its links by the page number carried in the
// URL. Links without one sort first and otherwise keep discovery order.
func orderPages(q *queue.Queue, profile *site.Compiled) []string {
	var links []pageLink
	for {
		u, _, ok := q.Next()
		if !ok {
			break
		}
		links = append(links, pageLink{url: u, order: pageOrder(u, profile)})
	}

	slices.SortStableFunc(links, func(a, b pageLink) int {
		return a.order - b.order
	})

	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.url
	}
	return urls
}

func pageOrder(u string, profile *site.Compiled) int {
	if profile.PageRe == nil {
		return 0
	}
	m := profile.PageRe.FindStringSubmatch(u)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
