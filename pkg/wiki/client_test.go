package wiki_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/wikisync/pkg/retry"
	"github.com/walteh/wikisync/pkg/wiki"
	"github.com/walteh/wikisync/pkg/wiki/wikitest"
	"gitlab.com/tozd/go/errors"
)

func newClient(t *testing.T, endpoint string) *wiki.Client {
	t.Helper()
	client, err := wiki.New(endpoint)
	require.NoError(t, err)
	return client
}

func freshToken(t *testing.T, client *wiki.Client) string {
	t.Helper()
	token, err := client.CSRFToken(context.Background())
	require.NoError(t, err)
	return token
}

func TestLoginHandshake(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	token, err := client.LoginToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, wikitest.LoginToken, token)

	require.NoError(t, client.Login(ctx, "Sync", "hunter2", token))
}

func TestLoginRejectedIsAuthError(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	token, err := client.LoginToken(ctx)
	require.NoError(t, err)

	err = client.Login(ctx, "Sync", "wrong", token)
	require.Error(t, err)
	assert.ErrorIs(t, err, wiki.ErrAuth)
	assert.Contains(t, err.Error(), "Incorrect username or password")
}

func TestPageContent(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()
	srv.SetPage("Animals/Cat", "meow")

	client := newClient(t, srv.URL)
	ctx := context.Background()

	content, found, err := client.PageContent(ctx, "Animals/Cat")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "meow", content)

	_, found, err = client.PageContent(ctx, "Animals/Unicorn")
	require.NoError(t, err, "a missing page is not an error")
	assert.False(t, found)
}

func TestGetFileInfo(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()
	srv.SetFile("Animals/photo.jpg", []byte("abc"))

	client := newClient(t, srv.URL)
	ctx := context.Background()

	info, found, err := client.GetFileInfo(ctx, "Animals/photo.jpg")
	require.NoError(t, err)
	assert.True(t, found)
	// sha1("abc")
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", info.SHA1)
	assert.Equal(t, int64(3), info.Size)

	_, found, err = client.GetFileInfo(ctx, "Animals/missing.jpg")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEditPage(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.EditPage(ctx, "Animals/Cat", "meow", freshToken(t, client)))

	content, ok := srv.Page("Animals/Cat")
	require.True(t, ok)
	assert.Equal(t, "meow", content)
}

func TestEditPageBadTokenIsTokenRejected(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	token := freshToken(t, client)
	srv.InvalidateToken()

	err := client.EditPage(ctx, "Animals/Cat", "meow", token)
	require.Error(t, err)
	assert.ErrorIs(t, err, wiki.ErrTokenRejected)
}

func TestUploadFile(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()

	client := newClient(t, srv.URL)
	ctx := context.Background()

	body := bytes.NewReader([]byte("jpeg bytes"))
	require.NoError(t, client.UploadFile(ctx, "Animals/photo.jpg", freshToken(t, client), body))

	content, ok := srv.File("Animals/photo.jpg")
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg bytes"), content)
}

func TestServerFaultIsHTTPError(t *testing.T) {
	srv := wikitest.New("Sync", "hunter2")
	defer srv.Close()
	srv.FailNext("revisions:Animals/Cat", 1)

	client := newClient(t, srv.URL)

	_, _, err := client.PageContent(context.Background(), "Animals/Cat")
	require.Error(t, err)
	var httpErr *wiki.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want retry.Decision
	}{
		{
			name: "nil_error_fails",
			err:  nil,
			want: retry.Fail,
		},
		{
			name: "token_rejected_forces_refresh",
			err:  errors.Errorf("editing: %w", wiki.ErrTokenRejected),
			want: retry.RefreshAndRetry,
		},
		{
			name: "auth_error_is_permanent",
			err:  errors.Errorf("logging in: %w", wiki.ErrAuth),
			want: retry.Fail,
		},
		{
			name: "server_fault_backs_off",
			err:  errors.WithStack(&wiki.HTTPError{StatusCode: 503}),
			want: retry.Backoff,
		},
		{
			name: "client_error_is_permanent",
			err:  errors.WithStack(&wiki.HTTPError{StatusCode: 403}),
			want: retry.Fail,
		},
		{
			name: "ratelimit_api_error_backs_off",
			err:  errors.WithStack(&wiki.APIError{Code: "ratelimited", Info: "slow down"}),
			want: retry.Backoff,
		},
		{
			name: "permission_api_error_is_permanent",
			err:  errors.WithStack(&wiki.APIError{Code: "permissiondenied", Info: "no"}),
			want: retry.Fail,
		},
		{
			name: "deadline_backs_off",
			err:  errors.Errorf("fetching: %w", context.DeadlineExceeded),
			want: retry.Backoff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wiki.Classify(tt.err))
		})
	}
}

func TestClassifyConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client := newClient(t, endpoint)
	_, _, err := client.PageContent(context.Background(), "Animals/Cat")
	require.Error(t, err)
	assert.Equal(t, retry.Backoff, wiki.Classify(err), "connection errors are transient")
}
