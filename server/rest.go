package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/umputun/podscope/pkg/domain"
	"github.com/umputun/podscope/pkg/repository"
)

const (
	defaultItemsLimit = 100
	maxItemsLimit     = 1000
)

// summaries are stored as markdown, raw html in them is not rendered
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type feedResponse struct {
	ID          int64          `json:"id"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	WebsiteURL  string         `json:"website_url,omitempty"`
	Description string         `json:"description,omitempty"`
	LastChecked *time.Time     `json:"last_checked,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Items       map[string]int `json:"items"`
}

type failureResponse struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type itemResponse struct {
	ID           int64            `json:"id"`
	FeedID       int64            `json:"feed_id,omitempty"`
	GUID         string           `json:"guid"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	SourceURL    string           `json:"source_url"`
	Published    *time.Time       `json:"published,omitempty"`
	DurationSecs int64            `json:"duration_secs,omitempty"`
	Status       string           `json:"status"`
	Failure      *failureResponse `json:"failure,omitempty"`
	InFeed       bool             `json:"in_feed"`
	DiscoveredAt time.Time        `json:"discovered_at"`
	AcquiredAt   *time.Time       `json:"acquired_at,omitempty"`
	DerivedAt    *time.Time       `json:"derived_at,omitempty"`
	SummarizedAt *time.Time       `json:"summarized_at,omitempty"`
}

type summaryResponse struct {
	ID           int64     `json:"id"`
	ItemID       int64     `json:"item_id"`
	Overview     string    `json:"overview"`
	Topics       []string  `json:"topics"`
	Takeaways    []string  `json:"takeaways"`
	Quotes       []string  `json:"quotes"`
	Gaps         []string  `json:"gaps,omitempty"`
	Windows      int       `json:"windows"`
	Model        string    `json:"model,omitempty"`
	PromptTokens *int64    `json:"prompt_tokens,omitempty"`
	OutputTokens *int64    `json:"output_tokens,omitempty"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

type lastRunResponse struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration,omitempty"`
	NewItems   int       `json:"new_items"`
	Summarized int       `json:"summarized"`
	Failed     int       `json:"failed"`
	Integrity  int       `json:"integrity"`
	Error      string    `json:"error,omitempty"`
}

// statusHandler returns server status with item counts and the last scheduled run
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByStatus(r.Context(), 0)
	if err != nil {
		s.storeError(w, r, err, "count items")
		return
	}

	status := map[string]any{
		"status":  "ok",
		"version": s.cfg.Version,
		"time":    time.Now().UTC(),
		"items":   countsMap(counts),
		"total":   counts.Total(),
	}
	if s.scheduler != nil {
		status["schedule"] = "enabled"
		if last := s.scheduler.LastRun(); last != nil {
			lr := lastRunResponse{StartedAt: last.StartedAt, Error: last.Err}
			if res := last.Result; res != nil {
				lr.RunID, lr.NewItems, lr.Summarized, lr.Failed = res.RunID, res.NewItems, res.Summarized, res.Failed
				lr.Integrity = len(res.Integrity)
				lr.Duration = res.Duration.Round(time.Millisecond).String()
			}
			status["last_run"] = lr
		}
	}
	renderJSON(w, r, http.StatusOK, status)
}

// feedsHandler lists subscribed feeds with per-status item counts
func (s *Server) feedsHandler(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds(r.Context())
	if err != nil {
		s.storeError(w, r, err, "get feeds")
		return
	}

	res := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		counts, err := s.store.CountByStatus(r.Context(), f.ID)
		if err != nil {
			s.storeError(w, r, err, "count items")
			return
		}
		res = append(res, feedResponse{ID: f.ID, URL: f.URL, Title: f.Title, WebsiteURL: f.WebsiteURL,
			Description: f.Description, LastChecked: f.LastChecked, CreatedAt: f.CreatedAt, Items: countsMap(counts)})
	}
	renderJSON(w, r, http.StatusOK, res)
}

// feedItemsHandler lists items of a feed, newest first.
// Query params: status (comma separated), limit.
func (s *Server) feedItemsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetFeed(r.Context(), id); err != nil {
		s.storeError(w, r, err, "get feed")
		return
	}

	filter := domain.ItemFilter{FeedID: id, Limit: defaultItemsLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			renderError(w, r, fmt.Errorf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxItemsLimit)
	}
	if v := r.URL.Query().Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			status := domain.Status(strings.TrimSpace(st))
			if !status.Valid() {
				renderError(w, r, fmt.Errorf("invalid status %q", st), http.StatusBadRequest)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		s.storeError(w, r, err, "list items")
		return
	}
	res := make([]itemResponse, len(items))
	for i := range items {
		res[i] = toItemResponse(&items[i])
	}
	renderJSON(w, r, http.StatusOK, res)
}

// itemHandler returns a single item with its failure details
func (s *Server) itemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "get item")
		return
	}
	renderJSON(w, r, http.StatusOK, toItemResponse(item))
}

// summaryHandler returns the current summary of an item.
// Query param format: json (default), markdown or html.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "markdown", "md", "html":
	default:
		renderError(w, r, fmt.Errorf("unknown format %q", format), http.StatusBadRequest)
		return
	}

	summary, err := s.store.CurrentSummary(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "get summary")
		return
	}

	switch format {
	case "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(summary.Content))
	case "html":
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(summary.Content), &buf); err != nil {
			lgr.Printf("[WARN] failed to render summary %d: %v", summary.ID, err)
			renderError(w, r, errors.New("can't render summary"), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	default:
		renderJSON(w, r, http.StatusOK, toSummaryResponse(summary))
	}
}

// summariesHandler returns the summary history of an item, newest first
func (s *Server) summariesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetItem(r.Context(), id); err != nil {
		s.storeError(w, r, err, "get item")
		return
	}
	history, err := s.store.SummaryHistory(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err, "get summary history")
		return
	}
	res := make([]summaryResponse, len(history))
	for i := range history {
		res[i] = toSummaryResponse(&history[i])
	}
	renderJSON(w, r, http.StatusOK, res)
}

// storeError maps a store error to 404 or 500
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	lgr.Printf("[ERROR] failed to %s: %v", what, err)
	renderError(w, r, fmt.Errorf("failed to %s", what), http.StatusInternalServerError)
}

// pathID parses the {id} path value, responding with 400 when it is not a positive integer
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		renderError(w, r, fmt.Errorf("invalid id %q", r.PathValue("id")), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func countsMap(counts domain.StatusCounts) map[string]int {
	res := make(map[string]int, len(counts))
	for st, n := range counts {
		res[string(st)] = n
	}
	return res
}

func toItemResponse(item *domain.Item) itemResponse {
	res := itemResponse{
		ID:           item.ID,
		FeedID:       item.FeedID,
		GUID:         item.GUID,
		Title:        item.Title,
		Description:  item.Description,
		SourceURL:    item.SourceURL,
		Published:    item.Published,
		DurationSecs: int64(item.Duration / time.Second),
		Status:       string(item.Status),
		InFeed:       item.InFeed,
		DiscoveredAt: item.DiscoveredAt,
		AcquiredAt:   item.AcquiredAt,
		DerivedAt:    item.DerivedAt,
		SummarizedAt: item.SummarizedAt,
	}
	if f := item.Failure; f != nil {
		res.Failure = &failureResponse{Stage: string(f.Stage), Kind: string(f.Kind), Code: string(f.Code), Message: f.Message}
	}
	return res
}

func toSummaryResponse(s *domain.Summary) summaryResponse {
	return summaryResponse{
		ID:           s.ID,
		ItemID:       s.ItemID,
		Overview:     s.Overview,
		Topics:       s.Topics,
		Takeaways:    s.Takeaways,
		Quotes:       s.Quotes,
		Gaps:         s.Gaps,
		Windows:      s.Windows,
		Model:        s.Model,
		PromptTokens: s.PromptTokens,
		OutputTokens: s.OutputTokens,
		Content:      s.Content,
		CreatedAt:    s.CreatedAt,
	}
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
