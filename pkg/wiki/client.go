// Package wiki is a minimal client for a MediaWiki-style HTTP API: token
// fetches, login, page reads/writes and file uploads. It performs single
// calls only; retry and token rotation live above it.
package wiki

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Client talks to a single API endpoint. The login call establishes a
// cookie session shared by all subsequent requests.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a client for the given api.php endpoint.
func New(endpoint string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Errorf("creating cookie jar: %w", err)
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Jar: jar},
	}, nil
}

// FileInfo describes a file already present on the remote wiki.
type FileInfo struct {
	SHA1 string
	Size int64
}

// LoginToken fetches a login-purpose token.
func (c *Client) LoginToken(ctx context.Context) (string, error) {
	var resp struct {
		Query struct {
			Tokens struct {
				LoginToken string `json:"logintoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return "", errors.Errorf("fetching login token: %w", err)
	}
	if resp.Query.Tokens.LoginToken == "" {
		return "", errors.New("server returned empty login token")
	}
	return resp.Query.Tokens.LoginToken, nil
}

// Login submits credentials together with a login token. Anything other
// than a Success result is an ErrAuth.
func (c *Client) Login(ctx context.Context, username, password, token string) error {
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	form := url.Values{
		"action":     {"login"},
		"lgname":     {username},
		"lgpassword": {password},
		"lgtoken":    {token},
	}
	if err := c.postForm(ctx, form, &resp); err != nil {
		return errors.Errorf("logging in: %w", err)
	}
	if resp.Login.Result != "Success" {
		reason := resp.Login.Reason
		if reason == "" {
			reason = resp.Login.Result
		}
		return errors.Errorf("%w: %s", ErrAuth, reason)
	}
	return nil
}

// CSRFToken fetches a fresh write token for the authenticated session.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	params := url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return "", errors.Errorf("fetching csrf token: %w", err)
	}
	if resp.Query.Tokens.CSRFToken == "" {
		return "", errors.New("server returned empty csrf token")
	}
	return resp.Query.Tokens.CSRFToken, nil
}

// PageContent returns the current text of a page. A page that does not
// exist remotely is not an error: found is false.
func (c *Client) PageContent(ctx context.Context, title string) (content string, found bool, err error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Missing   bool `json:"missing"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"titles":  {title},
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return "", false, errors.Errorf("fetching content of %q: %w", title, err)
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return "", false, nil
	}
	revs := resp.Query.Pages[0].Revisions
	if len(revs) == 0 {
		return "", false, nil
	}
	return revs[0].Slots.Main.Content, true, nil
}

// GetFileInfo returns the digest and size of a remote file, or found
// false when the file does not exist.
func (c *Client) GetFileInfo(ctx context.Context, filename string) (info FileInfo, found bool, err error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Missing   bool `json:"missing"`
				ImageInfo []struct {
					SHA1 string `json:"sha1"`
					Size int64  `json:"size"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action": {"query"},
		"prop":   {"imageinfo"},
		"iiprop": {"sha1|size"},
		"titles": {"File:" + filename},
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return FileInfo{}, false, errors.Errorf("fetching info of file %q: %w", filename, err)
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return FileInfo{}, false, nil
	}
	infos := resp.Query.Pages[0].ImageInfo
	if len(infos) == 0 {
		return FileInfo{}, false, nil
	}
	return FileInfo{SHA1: infos[0].SHA1, Size: infos[0].Size}, true, nil
}

// EditPage creates or replaces a page with the given text.
func (c *Client) EditPage(ctx context.Context, title, text, token string) error {
	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	form := url.Values{
		"action": {"edit"},
		"title":  {title},
		"text":   {text},
		"token":  {token},
	}
	if err := c.postForm(ctx, form, &resp); err != nil {
		return errors.Errorf("editing page %q: %w", title, err)
	}
	if resp.Edit.Result != "Success" {
		return errors.Errorf("editing page %q: unexpected result %q", title, resp.Edit.Result)
	}
	return nil
}

// UploadFile streams the file body to the remote wiki. There is no
// client-side size cap.
func (c *Client) UploadFile(ctx context.Context, filename, token string, body io.Reader) error {
	// The file part is streamed through a pipe so large uploads never
	// buffer fully in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		fields := map[string]string{
			"action":         "upload",
			"filename":       filename,
			"token":          token,
			"ignorewarnings": "1",
			"format":         "json",
			"formatversion":  "2",
		}
		for k, v := range fields {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return errors.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Upload struct {
			Result string `json:"result"`
		} `json:"upload"`
	}
	if err := c.do(req, &resp); err != nil {
		return errors.Errorf("uploading file %q: %w", filename, err)
	}
	if resp.Upload.Result != "Success" {
		return errors.Errorf("uploading file %q: unexpected result %q", filename, resp.Upload.Result)
	}
	return nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, form url.Values, out any) error {
	form.Set("format", "json")
	form.Set("formatversion", "2")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// do executes the request, surfaces HTTP and API-level errors, and
// decodes the response body into out.
func (c *Client) do(req *http.Request, out any) error {
	zerolog.Ctx(req.Context()).Trace().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("api request")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return errors.WithStack(&HTTPError{StatusCode: resp.StatusCode})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Errorf("reading response body: %w", err)
	}

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Errorf("decoding response: %w", err)
	}
	if envelope.Error != nil {
		if envelope.Error.Code == "badtoken" {
			return errors.Errorf("%w: %s", ErrTokenRejected, envelope.Error.Info)
		}
		return errors.WithStack(&APIError{Code: envelope.Error.Code, Info: envelope.Error.Info})
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Errorf("decoding response: %w", err)
	}
	return nil
}
