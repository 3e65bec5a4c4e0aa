package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

const (
	emailDefaultTLSPort   = 993
	emailDefaultPlainPort = 143
	emailDefaultBatchSize = 50
	emailDefaultRPS       = 0.5
)

// emailAlertsAdapter reads job-alert digests from an IMAP mailbox and splits
// each message into posting records with the configured CSS selectors. The
// cursor is the highest message UID already processed, so re-runs only read
// mail that arrived since.
type emailAlertsAdapter struct {
	def     *models.SourceDefinition
	limiter *rate.Limiter
	timeout time.Duration
	logger  arbor.ILogger
}

func newEmailAlertsAdapter(def *models.SourceDefinition, timeout time.Duration, logger arbor.ILogger) *emailAlertsAdapter {
	return &emailAlertsAdapter{
		def:     def,
		limiter: newLimiter(def, emailDefaultRPS),
		timeout: timeout,
		logger:  logger,
	}
}

func (a *emailAlertsAdapter) Name() string { return a.def.Name }

func (a *emailAlertsAdapter) Type() string { return models.SourceTypeEmailAlerts }

// alertItem matches the payload shape the normalizer expects for email sources
type alertItem struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	URL         string `json:"url"`
	SnippetHTML string `json:"snippet_html"`
	ReceivedAt  string `json:"received_at"`
}

func (a *emailAlertsAdapter) FetchPage(ctx context.Context, _ models.QuerySpec, cursor string) (*interfaces.FetchPage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}

	sinceUID := uint32(0)
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 32)
		if err != nil {
			return nil, &models.PermanentFetchError{
				Source: a.def.Name,
				Reason: fmt.Sprintf("invalid uid cursor %q", cursor),
			}
		}
		sinceUID = uint32(parsed)
	}

	c, err := a.dial()
	if err != nil {
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}
	defer c.Logout()

	if err := c.Login(a.def.Auth.Username, a.def.Auth.Password); err != nil {
		return nil, &models.PermanentFetchError{
			Source: a.def.Name,
			Reason: "imap login rejected",
			Err:    err,
		}
	}

	mailbox := a.def.Email.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, true)
	if err != nil {
		return nil, &models.PermanentFetchError{
			Source: a.def.Name,
			Reason: fmt.Sprintf("mailbox %q not selectable", mailbox),
			Err:    err,
		}
	}
	if mbox.Messages == 0 {
		return &interfaces.FetchPage{}, nil
	}

	uids, err := a.searchNewer(c, sinceUID)
	if err != nil {
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}
	if len(uids) == 0 {
		return &interfaces.FetchPage{}, nil
	}

	batch := a.def.Email.BatchSize
	if batch <= 0 {
		batch = emailDefaultBatchSize
	}
	window := uids
	more := false
	if len(uids) > batch {
		window = uids[:batch]
		more = true
	}

	records, err := a.fetchWindow(ctx, c, window)
	if err != nil {
		return nil, err
	}

	next := ""
	if more {
		next = strconv.FormatUint(uint64(window[len(window)-1]), 10)
	}

	return &interfaces.FetchPage{Records: records, NextCursor: next}, nil
}

// dial opens the IMAP connection, TLS unless the definition turns it off
func (a *emailAlertsAdapter) dial() (*client.Client, error) {
	useTLS := true
	if a.def.Email.UseTLS != nil {
		useTLS = *a.def.Email.UseTLS
	}

	port := a.def.Email.Port
	if port == 0 {
		port = emailDefaultTLSPort
		if !useTLS {
			port = emailDefaultPlainPort
		}
	}

	addr := fmt.Sprintf("%s:%d", a.def.Email.Host, port)

	var (
		c   *client.Client
		err error
	)
	if useTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, err
	}

	c.Timeout = a.timeout
	return c, nil
}

// searchNewer returns the UIDs above sinceUID that match the sender filter,
// ascending
func (a *emailAlertsAdapter) searchNewer(c *client.Client, sinceUID uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if a.def.Email.FromFilter != "" {
		criteria.Header = textproto.MIMEHeader{"From": {a.def.Email.FromFilter}}
	}
	if sinceUID > 0 {
		uidSet := new(imap.SeqSet)
		uidSet.AddRange(sinceUID+1, 0)
		criteria.Uid = uidSet
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search failed: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// fetchWindow downloads the message bodies for one UID window and splits them
// into posting records
func (a *emailAlertsAdapter) fetchWindow(ctx context.Context, c *client.Client, window []uint32) ([]models.RawRecord, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(window...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(window))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	fetchedAt := time.Now().UTC()
	var records []models.RawRecord
	for msg := range messages {
		if msg == nil {
			continue
		}
		if ctx.Err() != nil {
			// Drain so the fetch goroutine can finish
			continue
		}

		body, err := a.messageHTML(msg, section)
		if err != nil {
			a.logger.Warn().
				Str("source", a.def.Name).
				Int64("uid", int64(msg.Uid)).
				Err(err).
				Msg("Failed to parse alert message")
			continue
		}

		records = append(records, a.splitAlert(msg, body, fetchedAt)...)
	}

	if err := <-done; err != nil {
		return nil, models.ClassifyFetchError(a.def.Name, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return records, nil
}

// messageHTML extracts the HTML body of one message, falling back to the
// plain-text part wrapped in pre tags
func (a *emailAlertsAdapter) messageHTML(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var plain string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read part: %w", err)
		}

		header, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}

		switch contentType {
		case "text/html":
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read html part: %w", err)
			}
			return string(body), nil
		case "text/plain":
			if plain == "" {
				if body, err := io.ReadAll(p.Body); err == nil {
					plain = string(body)
				}
			}
		}
	}

	if plain == "" {
		return "", fmt.Errorf("no readable body part")
	}
	return "<pre>" + plain + "</pre>", nil
}

// splitAlert cuts one alert message into posting records. Without a block
// selector the whole message becomes a single record titled by its subject.
func (a *emailAlertsAdapter) splitAlert(msg *imap.Message, body string, fetchedAt time.Time) []models.RawRecord {
	subject := ""
	receivedAt := ""
	if msg.Envelope != nil {
		subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			receivedAt = msg.Envelope.Date.UTC().Format(time.RFC1123Z)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		a.logger.Warn().
			Str("source", a.def.Name).
			Int64("uid", int64(msg.Uid)).
			Err(err).
			Msg("Failed to parse alert body")
		return nil
	}

	opts := a.def.Email
	var items []alertItem

	if opts.BlockSelector != "" {
		doc.Find(opts.BlockSelector).Each(func(_ int, sel *goquery.Selection) {
			item := alertItem{
				Title:      selectionText(sel, opts.TitleSelector),
				URL:        strings.TrimSpace(selectionHref(sel, opts.URLSelector)),
				ReceivedAt: receivedAt,
			}
			if html, err := goquery.OuterHtml(sel); err == nil {
				item.SnippetHTML = html
			}
			if item.Title == "" {
				return
			}
			items = append(items, item)
		})
	} else {
		href, _ := doc.Find("a").First().Attr("href")
		items = append(items, alertItem{
			Title:       subject,
			URL:         strings.TrimSpace(href),
			SnippetHTML: body,
			ReceivedAt:  receivedAt,
		})
	}

	records := make([]models.RawRecord, 0, len(items))
	for i, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			continue
		}
		records = append(records, models.RawRecord{
			SourceName: a.def.Name,
			SourceType: models.SourceTypeEmailAlerts,
			ExternalID: fmt.Sprintf("%d-%d", msg.Uid, i),
			URL:        item.URL,
			Payload:    payload,
			FetchedAt:  fetchedAt,
		})
	}
	return records
}
