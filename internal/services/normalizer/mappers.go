package normalizer

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// adzunaResult is one entry of the Adzuna search results array
type adzunaResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Description  string  `json:"description"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	ContractTime string  `json:"contract_time"` // full_time / part_time
	ContractType string  `json:"contract_type"` // permanent / contract
	Created      string  `json:"created"`
	RedirectURL  string  `json:"redirect_url"`
}

func (s *Service) mapAdzuna(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var r adzunaResult
	if err := json.Unmarshal(raw.Payload, &r); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Title:       r.Title,
		Company:     r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		Description: r.Description, // Adzuna returns plain-text snippets

		// Adzuna reports salaries annualized in the board's local currency
		CompensationMin: r.SalaryMin,
		CompensationMax: r.SalaryMax,

		SourceExternalID: r.ID,
		SourceURL:        r.RedirectURL,
	}

	switch {
	case r.ContractTime != "":
		posting.EmploymentType = r.ContractTime
	case r.ContractType == "contract":
		posting.EmploymentType = models.EmploymentContract
	}

	if r.Created != "" {
		created, err := parseTime(r.Created)
		if err != nil {
			return nil, dateError(raw, "created", r.Created)
		}
		posting.PostedAt = created
	}

	return posting, nil
}

// greenhouseJob is one entry of the Greenhouse board jobs array. Content is
// HTML with entities escaped by the boards API.
type greenhouseJob struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	AbsoluteURL    string `json:"absolute_url"`
	FirstPublished string `json:"first_published"`
	UpdatedAt      string `json:"updated_at"`
}

func (s *Service) mapGreenhouse(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var j greenhouseJob
	if err := json.Unmarshal(raw.Payload, &j); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Title:            j.Title,
		Location:         j.Location.Name,
		SourceExternalID: fmt.Sprintf("%d", j.ID),
		SourceURL:        j.AbsoluteURL,
	}
	if j.ID == 0 {
		posting.SourceExternalID = ""
	}

	// The boards API escapes the HTML body; unescape before converting
	if j.Content != "" {
		posting.Description = s.markdown(html.UnescapeString(j.Content), j.AbsoluteURL)
	}

	published := j.FirstPublished
	if published == "" {
		published = j.UpdatedAt
	}
	if published != "" {
		ts, err := parseTime(published)
		if err != nil {
			return nil, dateError(raw, "first_published", published)
		}
		posting.PostedAt = ts
	}

	return posting, nil
}

// leverPosting is one entry of the Lever postings array
type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Categories struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
		Team       string `json:"team"`
	} `json:"categories"`
	Description string `json:"description"` // HTML
	HostedURL   string `json:"hostedUrl"`
	CreatedAt   int64  `json:"createdAt"` // Epoch milliseconds
	SalaryRange *struct {
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
		Currency string  `json:"currency"`
		Interval string  `json:"interval"` // e.g. per-year-salary, per-hour-wage
	} `json:"salaryRange"`
}

func (s *Service) mapLever(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var p leverPosting
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Title:            p.Text,
		Location:         p.Categories.Location,
		EmploymentType:   p.Categories.Commitment,
		SourceExternalID: p.ID,
		SourceURL:        p.HostedURL,
	}

	if p.Description != "" {
		posting.Description = s.markdown(p.Description, p.HostedURL)
	}

	if p.SalaryRange != nil {
		min, max := annualize(p.SalaryRange.Min, p.SalaryRange.Max, p.SalaryRange.Interval)
		posting.CompensationMin = min
		posting.CompensationMax = max
		posting.CompensationCurrency = strings.ToUpper(p.SalaryRange.Currency)
	}

	if p.CreatedAt > 0 {
		posting.PostedAt = timeFromMillis(p.CreatedAt)
	}

	return posting, nil
}

// htmlBoardItem is built by the html adapter from the configured selectors
type htmlBoardItem struct {
	Title           string `json:"title"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	DescriptionHTML string `json:"description_html"`
}

func (s *Service) mapHTMLBoard(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var item htmlBoardItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Title:     item.Title,
		Company:   item.Company,
		Location:  item.Location,
		SourceURL: item.URL,
	}

	if item.DescriptionHTML != "" {
		posting.Description = s.markdown(item.DescriptionHTML, item.URL)
	}

	return posting, nil
}

// githubIssue is built by the github adapter from the issue fields that
// matter to a job board
type githubIssue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"` // Markdown already
	HTMLURL   string   `json:"html_url"`
	Labels    []string `json:"labels"`
	CreatedAt string   `json:"created_at"`
}

func (s *Service) mapGitHub(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var issue githubIssue
	if err := json.Unmarshal(raw.Payload, &issue); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Description:      issue.Body,
		SourceExternalID: fmt.Sprintf("%d", issue.Number),
		SourceURL:        issue.HTMLURL,
	}
	if issue.Number == 0 {
		posting.SourceExternalID = ""
	}

	// Issue-board title convention packs identity into the subject:
	// "Company — Role | Location". Split off whichever parts are present.
	title := issue.Title
	if role, location, found := strings.Cut(title, " | "); found {
		posting.Location = strings.TrimSpace(location)
		title = role
	}
	if company, role, found := strings.Cut(title, " — "); found {
		posting.Company = strings.TrimSpace(company)
		title = role
	}
	posting.Title = title

	// A "location: x" label or a bare "remote" label is explicit metadata
	// and wins over the title text
	for _, label := range issue.Labels {
		lower := strings.ToLower(label)
		if strings.HasPrefix(lower, "location:") {
			// Slice the original so the value keeps its display case
			posting.Location = strings.TrimSpace(label[len("location:"):])
			break
		}
		if lower == "remote" {
			posting.Location = "Remote"
		}
	}

	if issue.CreatedAt != "" {
		ts, err := parseTime(issue.CreatedAt)
		if err != nil {
			return nil, dateError(raw, "created_at", issue.CreatedAt)
		}
		posting.PostedAt = ts
	}

	return posting, nil
}

// emailAlertItem is one posting block the email adapter cut out of an alert
// message body
type emailAlertItem struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	URL         string `json:"url"`
	SnippetHTML string `json:"snippet_html"`
	ReceivedAt  string `json:"received_at"`
}

func (s *Service) mapEmailAlert(raw *models.RawRecord) (*models.NormalizedPosting, error) {
	var item emailAlertItem
	if err := json.Unmarshal(raw.Payload, &item); err != nil {
		return nil, payloadError(raw, err)
	}

	posting := &models.NormalizedPosting{
		Title:     item.Title,
		Company:   item.Company,
		Location:  item.Location,
		SourceURL: item.URL,
	}

	// Alert subjects commonly pack the company into the title: "Role at Acme"
	if posting.Company == "" {
		if title, company, found := strings.Cut(posting.Title, " at "); found && company != "" {
			posting.Title = title
			posting.Company = company
		}
	}

	if item.SnippetHTML != "" {
		posting.Description = s.markdown(item.SnippetHTML, item.URL)
	}

	if item.ReceivedAt != "" {
		ts, err := parseTime(item.ReceivedAt)
		if err != nil {
			return nil, dateError(raw, "received_at", item.ReceivedAt)
		}
		posting.PostedAt = ts
	}

	return posting, nil
}

func payloadError(raw *models.RawRecord, err error) error {
	return &models.NormalizationError{
		Source: raw.SourceName,
		Field:  "payload",
		Reason: fmt.Sprintf("malformed payload: %v", err),
	}
}

func dateError(raw *models.RawRecord, field, value string) error {
	return &models.NormalizationError{
		Source: raw.SourceName,
		Field:  field,
		Reason: fmt.Sprintf("unparseable date %q", value),
	}
}
