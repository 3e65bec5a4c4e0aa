package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

const (
	htmlDefaultNextPageSelector = "a[rel=next]"
	htmlDefaultRPS              = 0.5
)

// htmlBoardAdapter scrapes a careers page with the definition's CSS
// selectors. The cursor is the absolute URL of the next page; render_js
// sources go through the headless renderer instead of the plain client.
type htmlBoardAdapter struct {
	def      *models.SourceDefinition
	client   *fetchClient
	renderer *Renderer
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

func newHTMLBoardAdapter(def *models.SourceDefinition, client *fetchClient, renderer *Renderer, logger arbor.ILogger) *htmlBoardAdapter {
	return &htmlBoardAdapter{
		def:      def,
		client:   client,
		renderer: renderer,
		limiter:  newLimiter(def, htmlDefaultRPS),
		logger:   logger,
	}
}

func (a *htmlBoardAdapter) Name() string { return a.def.Name }

func (a *htmlBoardAdapter) Type() string { return models.SourceTypeHTMLBoard }

// boardItem matches the payload shape the normalizer expects for html sources
type boardItem struct {
	Title           string `json:"title"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	DescriptionHTML string `json:"description_html"`
}

func (a *htmlBoardAdapter) FetchPage(ctx context.Context, _ models.QuerySpec, cursor string) (*interfaces.FetchPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}

	pageURL := cursor
	if pageURL == "" {
		pageURL = a.def.BaseURL
	}

	var (
		page string
		err  error
	)
	if a.def.HTML.RenderJS {
		page, err = a.renderer.Render(ctx, a.def.Name, pageURL)
	} else {
		page, err = a.client.getHTML(ctx, a.def.Name, pageURL, a.def.Auth.Headers)
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, &models.PermanentFetchError{
			Source: a.def.Name,
			Reason: "unparseable page",
			Err:    err,
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &models.PermanentFetchError{
			Source: a.def.Name,
			Reason: "invalid page url",
			Err:    err,
		}
	}

	opts := a.def.HTML
	fetchedAt := time.Now().UTC()
	var records []models.RawRecord
	skipped := 0

	doc.Find(opts.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		item := boardItem{
			Title:    selectionText(sel, opts.TitleSelector),
			Company:  selectionText(sel, opts.CompanySelector),
			Location: selectionText(sel, opts.LocationSelector),
			URL:      resolveHref(base, selectionHref(sel, opts.URLSelector)),
		}
		if item.Company == "" {
			item.Company = a.def.CompanyName()
		}
		if opts.DescriptionSelector != "" {
			if html, err := sel.Find(opts.DescriptionSelector).First().Html(); err == nil {
				item.DescriptionHTML = strings.TrimSpace(html)
			}
		}

		if item.Title == "" {
			skipped++
			return
		}

		payload, err := json.Marshal(item)
		if err != nil {
			skipped++
			return
		}

		records = append(records, models.RawRecord{
			SourceName:  a.def.Name,
			SourceType:  models.SourceTypeHTMLBoard,
			URL:         item.URL,
			CompanyHint: a.def.CompanyName(),
			Payload:     payload,
			FetchedAt:   fetchedAt,
		})
	})

	if skipped > 0 {
		a.logger.Debug().
			Str("source", a.def.Name).
			Int("skipped", skipped).
			Msg("Skipped items without a title")
	}

	next := a.nextPageURL(doc, base, pageURL)

	return &interfaces.FetchPage{Records: records, NextCursor: next}, nil
}

// nextPageURL resolves the next-page link, guarding against pages that link
// back to themselves
func (a *htmlBoardAdapter) nextPageURL(doc *goquery.Document, base *url.URL, pageURL string) string {
	selector := a.def.HTML.NextPageSelector
	if selector == "" {
		selector = htmlDefaultNextPageSelector
	}

	href, ok := doc.Find(selector).First().Attr("href")
	if !ok {
		return ""
	}

	next := resolveHref(base, strings.TrimSpace(href))
	if next == "" || next == pageURL {
		return ""
	}
	return next
}

// selectionText returns the trimmed text of the first match inside sel
func selectionText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

// selectionHref returns the href of the first match inside sel. An empty
// selector falls back to the item's first anchor.
func selectionHref(sel *goquery.Selection, selector string) string {
	target := sel.Find("a").First()
	if selector != "" {
		target = sel.Find(selector).First()
	}
	href, _ := target.Attr("href")
	return strings.TrimSpace(href)
}

// resolveHref turns a possibly relative href into an absolute URL
func resolveHref(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
