package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/valter-silva-au/saved-sync/internal/core"
	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const (
	defaultSlackBaseURL = "https://slack.com/api"
	defaultSlackTimeout = 30 * time.Second
	defaultSlackBurst   = 3
	maxErrorBody        = 512
)

// SlackClient talks to the Slack Web API with a user token. It implements
// core.SavedItemsAPI; every failure is a *core.RemoteError.
type SlackClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSlackClient creates a client for baseURL paced at requestsPerSecond.
// A non-positive rate disables pacing.
func NewSlackClient(token, baseURL string, requestsPerSecond float64) *SlackClient {
	if baseURL == "" {
		baseURL = defaultSlackBaseURL
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &SlackClient{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultSlackTimeout},
		limiter:    rate.NewLimiter(limit, defaultSlackBurst),
	}
}

// slackEnvelope is the part every Web API response shares.
type slackEnvelope struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type starsListResponse struct {
	slackEnvelope
	Items []json.RawMessage `json:"items"`
}

type usersInfoResponse struct {
	slackEnvelope
	User struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			DisplayName string `json:"display_name"`
			RealName    string `json:"real_name"`
		} `json:"profile"`
	} `json:"user"`
}

type conversationsInfoResponse struct {
	slackEnvelope
	Channel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channel"`
}

// ListSavedItems fetches one page of saved items.
func (c *SlackClient) ListSavedItems(ctx context.Context, cursor string, limit int) (*models.SavedPage, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp starsListResponse
	if err := c.call(ctx, http.MethodGet, "stars.list", params, &resp); err != nil {
		return nil, err
	}

	page := &models.SavedPage{
		Items:      make([]models.HarvestedItem, 0, len(resp.Items)),
		NextCursor: resp.ResponseMetadata.NextCursor,
	}
	for _, raw := range resp.Items {
		item, err := ParseSavedItem(raw)
		if err != nil {
			return nil, &core.RemoteError{Op: "stars.list", Kind: core.KindOther, Code: "invalid_item", Err: err}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// ResolveUser fetches the name fields of a user.
func (c *SlackClient) ResolveUser(ctx context.Context, id string) (*models.UserInfo, error) {
	var resp usersInfoResponse
	if err := c.call(ctx, http.MethodGet, "users.info", url.Values{"user": {id}}, &resp); err != nil {
		return nil, err
	}
	return &models.UserInfo{
		ID:          id,
		DisplayName: resp.User.Profile.DisplayName,
		RealName:    firstNonEmpty(resp.User.Profile.RealName, resp.User.RealName),
		Handle:      resp.User.Name,
	}, nil
}

// ResolveChannel fetches the name of a conversation.
func (c *SlackClient) ResolveChannel(ctx context.Context, id string) (*models.ChannelInfo, error) {
	var resp conversationsInfoResponse
	if err := c.call(ctx, http.MethodGet, "conversations.info", url.Values{"channel": {id}}, &resp); err != nil {
		return nil, err
	}
	return &models.ChannelInfo{ID: id, Name: resp.Channel.Name}, nil
}

// UnsaveItem removes an item from the saved list.
func (c *SlackClient) UnsaveItem(ctx context.Context, ref models.ItemRef) error {
	form := url.Values{}
	switch {
	case ref.CommentID != "":
		form.Set("file_comment", ref.CommentID)
	case ref.FileID != "":
		form.Set("file", ref.FileID)
	case ref.ChannelID != "":
		form.Set("channel", ref.ChannelID)
		if ref.Timestamp != "" {
			form.Set("timestamp", ref.Timestamp)
		}
	default:
		return &core.RemoteError{Op: "stars.remove", Kind: core.KindOther, Code: "no_item_specified"}
	}

	var resp slackEnvelope
	return c.call(ctx, http.MethodPost, "stars.remove", form, &resp)
}

// call performs one Web API request and decodes the JSON response into out,
// which must embed slackEnvelope.
func (c *SlackClient) call(ctx context.Context, method, endpoint string, params url.Values, out interface{ envelope() *slackEnvelope }) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &core.RemoteError{Op: endpoint, Kind: core.KindTransport, Err: err}
	}

	req, err := c.newRequest(ctx, method, endpoint, params)
	if err != nil {
		return &core.RemoteError{Op: endpoint, Kind: core.KindOther, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.RemoteError{Op: endpoint, Kind: core.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &core.RemoteError{Op: endpoint, Kind: core.KindTransport, Code: "invalid_response", Err: err}
	}

	env := out.envelope()
	if !env.OK {
		code := env.Error
		if code == "" {
			code = "unknown_error"
		}
		return &core.RemoteError{
			Op:         endpoint,
			Kind:       classifySlackError(code),
			Code:       code,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return nil
}

func (c *SlackClient) newRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	target := c.baseURL + "/" + endpoint

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (e *slackEnvelope) envelope() *slackEnvelope { return e }

// parseHTTPError maps a non-200 response to a RemoteError.
func parseHTTPError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	re := &core.RemoteError{
		Op:   endpoint,
		Code: strconv.Itoa(resp.StatusCode),
		Err:  fmt.Errorf("HTTP %s: %s", resp.Status, strings.TrimSpace(string(body))),
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		re.Kind = core.KindRateLimited
		re.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		re.Kind = core.KindAuth
	case resp.StatusCode == http.StatusNotFound:
		re.Kind = core.KindNotFound
	case resp.StatusCode >= 500:
		re.Kind = core.KindTransport
	default:
		re.Kind = core.KindOther
	}
	return re
}

var slackErrorKinds = map[string]core.ErrorKind{
	"ratelimited":       core.KindRateLimited,
	"rate_limited":      core.KindRateLimited,
	"invalid_auth":      core.KindAuth,
	"not_authed":        core.KindAuth,
	"account_inactive":  core.KindAuth,
	"token_revoked":     core.KindAuth,
	"token_expired":     core.KindAuth,
	"missing_scope":     core.KindAuth,
	"no_permission":     core.KindAuth,
	"user_not_found":    core.KindNotFound,
	"channel_not_found": core.KindNotFound,
	"file_not_found":    core.KindNotFound,
	"not_starred":       core.KindNotFound,
	"message_not_found": core.KindNotFound,
}

// classifySlackError maps a Web API error string to an ErrorKind.
func classifySlackError(code string) core.ErrorKind {
	if kind, ok := slackErrorKinds[code]; ok {
		return kind
	}
	return core.KindOther
}

// parseRetryAfter parses the Retry-After header
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	// Try parsing as seconds (integer)
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

// --- Item parsing ---

type rawSavedItem struct {
	Type       string          `json:"type"`
	Channel    json.RawMessage `json:"channel"`
	DateCreate int64           `json:"date_create"`
	Message    *rawMessage     `json:"message"`
	File       *rawFile        `json:"file"`
	Comment    *rawComment     `json:"comment"`
}

type rawMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	TS        string `json:"ts"`
	Team      string `json:"team"`
	Permalink string `json:"permalink"`
}

type rawFile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	User      string `json:"user"`
	Permalink string `json:"permalink"`
}

type rawComment struct {
	ID        string `json:"id"`
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

// ParseSavedItem turns one raw stars.list record into a HarvestedItem.
// Records of unrecognised type become *models.UnknownItem carrying the raw
// fields.
func ParseSavedItem(raw json.RawMessage) (models.HarvestedItem, error) {
	var r rawSavedItem
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding saved item: %w", err)
	}

	var savedAt time.Time
	if r.DateCreate > 0 {
		savedAt = time.Unix(r.DateCreate, 0).UTC()
	}
	channelID, channelName := parseChannelField(r.Channel)

	switch {
	case r.Type == "message" && r.Message != nil:
		return &models.MessageItem{
			AuthorID:  firstNonEmpty(r.Message.User, core.UnknownID),
			ChannelID: channelID,
			TeamID:    r.Message.Team,
			Text:      r.Message.Text,
			Timestamp: r.Message.TS,
			Permalink: r.Message.Permalink,
			SavedAt:   savedAt,
		}, nil
	case r.Type == "file" && r.File != nil:
		return &models.FileItem{
			FileID:    r.File.ID,
			Name:      r.File.Name,
			Title:     r.File.Title,
			OwnerID:   r.File.User,
			Permalink: r.File.Permalink,
			SavedAt:   savedAt,
		}, nil
	case r.Type == "file_comment" && r.Comment != nil:
		item := &models.FileCommentItem{
			CommentID: r.Comment.ID,
			Text:      r.Comment.Comment,
			SavedAt:   savedAt,
		}
		if r.Comment.Timestamp > 0 {
			item.Timestamp = strconv.FormatInt(r.Comment.Timestamp, 10)
		}
		if r.File != nil {
			item.FileID = r.File.ID
		}
		return item, nil
	case r.Type == "channel" && channelID != "":
		return &models.ChannelItem{ChannelID: channelID, Name: channelName, SavedAt: savedAt}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding saved item: %w", err)
	}
	tag := r.Type
	if tag == "" {
		tag = string(models.KindUnknown)
	}
	return &models.UnknownItem{TypeTag: tag, Raw: fields}, nil
}

// parseChannelField accepts the channel as either an id string or an object
// with id and name.
func parseChannelField(raw json.RawMessage) (id, name string) {
	if len(raw) == 0 {
		return "", ""
	}
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, ""
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID, obj.Name
	}
	return "", ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ core.SavedItemsAPI = (*SlackClient)(nil)
