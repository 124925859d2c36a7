package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ErrFetchFailed marks a transport or parse failure while paging through
// revision history. The whole article fetch is abandoned; no partial
// results are returned.
var ErrFetchFailed = errors.New("revision fetch failed")

// Client talks to a MediaWiki action API.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client against the given api.php endpoint. Requests
// carry a fixed timeout and are never retried.
func NewClient(endpoint, userAgent string, timeout time.Duration) *Client {
	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// doGet performs one API request and decodes the JSON response.
func (c *Client) doGet(ctx context.Context, params url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return pkgerrors.Wrap(err, "create request")
	}

	// Wikimedia requires an identifying user agent
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, "read response")
	}

	if err := json.Unmarshal(body, result); err != nil {
		return pkgerrors.Wrap(err, "unmarshal response")
	}

	return nil
}

// FetchRevisions retrieves the full revision history for a validated
// title, following the continuation cursor until the API stops returning
// one. Continuation parameters are echoed back verbatim. A nonexistent
// article yields an empty list, not an error.
func (c *Client) FetchRevisions(ctx context.Context, title string) ([]Revision, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {title},
		"rvprop":  {"ids|flags|timestamp|user|comment|size|tags"},
		"rvlimit": {"max"},
		"format":  {"json"},
	}

	var revisions []Revision

	for {
		var resp revisionsResponse
		if err := c.doGet(ctx, params, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: api error %s: %s", ErrFetchFailed, resp.Error.Code, resp.Error.Info)
		}

		for _, page := range resp.Query.Pages {
			revisions = append(revisions, convertPage(page.Revisions)...)
		}

		if len(resp.Continue) == 0 {
			break
		}
		for k, v := range resp.Continue {
			params.Set(k, v)
		}
	}

	return revisions, nil
}

// convertPage normalizes one page of wire revisions. size_change pairs
// each revision with the immediately following record, which is the
// chronologically prior one; the trailing record of a page has no
// size_change even if an older revision exists in a later page.
func convertPage(wire []wireRevision) []Revision {
	revisions := make([]Revision, 0, len(wire))

	for i, wr := range wire {
		rev := Revision{
			ID:        wr.RevID,
			ParentID:  wr.ParentID,
			Timestamp: normalizeTimestamp(wr.Timestamp),
			User:      wr.User,
			Comment:   wr.Comment,
			Flags:     joinFlags(wr),
			Size:      wr.Size,
			Tags:      strings.Join(wr.Tags, ","),
		}

		if i+1 < len(wire) {
			diff := wr.Size - wire[i+1].Size
			rev.SizeChange = &diff
		}

		revisions = append(revisions, rev)
	}

	return revisions
}

// normalizeTimestamp converts the wire's "2006-01-02T15:04:05Z" form
// into "2006-01-02 15:04:05".
func normalizeTimestamp(ts string) string {
	ts = strings.TrimSuffix(ts, "Z")
	return strings.ReplaceAll(ts, "T", " ")
}

func joinFlags(wr wireRevision) string {
	var flags []string
	if wr.Minor != nil {
		flags = append(flags, "minor")
	}
	if wr.Anon != nil {
		flags = append(flags, "anon")
	}
	return strings.Join(flags, ",")
}

// LookupUser queries the user-metadata endpoint for group memberships,
// block status and the remote numeric id. Transport and parse failures
// return an error; a user the remote reports as missing or invalid comes
// back with Missing set, which the resolver degrades to the neutral
// classification.
func (c *Client) LookupUser(ctx context.Context, username string) (*RemoteUser, error) {
	params := url.Values{
		"action":  {"query"},
		"list":    {"users"},
		"ususers": {username},
		"usprop":  {"groups|blockinfo|userid"},
		"format":  {"json"},
	}

	var resp usersResponse
	if err := c.doGet(ctx, params, &resp); err != nil {
		return nil, pkgerrors.WithMessagef(err, "looking up user %q", username)
	}
	if resp.Error != nil {
		return nil, pkgerrors.Errorf("looking up user %q: api error %s: %s", username, resp.Error.Code, resp.Error.Info)
	}
	if len(resp.Query.Users) == 0 {
		return nil, pkgerrors.Errorf("looking up user %q: empty response", username)
	}

	wu := resp.Query.Users[0]
	return &RemoteUser{
		ID:      wu.UserID,
		Name:    wu.Name,
		Groups:  wu.Groups,
		Blocked: wu.BlockID != nil,
		Missing: wu.Missing != nil || wu.Invalid != nil,
	}, nil
}
