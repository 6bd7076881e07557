package wiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(config.WikiConfig{
		UserAgent:    "revision-warden-test",
		Timeout:      5 * time.Second,
		APIOverrides: map[string]string{"enwiki": srv.URL + "/w/api.php"},
	}, logger)
}

func TestDomain(t *testing.T) {
	tests := []struct {
		wiki    string
		want    string
		wantErr bool
	}{
		{wiki: "enwiki", want: "en.wikipedia.org"},
		{wiki: "zh_yuewiki", want: "zh-yue.wikipedia.org"},
		{wiki: "wikidatawiki", want: "www.wikidata.org"},
		{wiki: "frwiktionary", want: "fr.wiktionary.org"},
		{wiki: "wiki", wantErr: true},
		{wiki: "unknown", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.wiki, func(t *testing.T) {
			got, err := Domain(tt.wiki)
			if tt.wantErr {
				require.ErrorIs(t, err, core.ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CategoryMembersPaginates(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "revision-warden-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Category:COVID-19", r.URL.Query().Get("cmtitle"))
		if r.URL.Query().Get("cmcontinue") == "" {
			fmt.Fprint(w, `{"continue":{"cmcontinue":"page|2","continue":"-||"},"query":{"categorymembers":[
				{"ns":0,"title":"COVID-19 pandemic"},{"ns":14,"title":"Category:COVID-19 vaccines"}]}}`)
			return
		}
		assert.Equal(t, "page|2", r.URL.Query().Get("cmcontinue"))
		fmt.Fprint(w, `{"query":{"categorymembers":[{"ns":0,"title":"SARS-CoV-2"}]}}`)
	})

	got, err := c.CategoryMembers(context.Background(), "enwiki", "Category:COVID-19")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"COVID-19 pandemic", "SARS-CoV-2"}, got.Pages)
	assert.Equal(t, []string{"Category:COVID-19 vaccines"}, got.Subcategories)
}

func TestClient_LookupRevisions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "989699374", r.URL.Query().Get("revids"))
		fmt.Fprint(w, `{"query":{"pages":[{"title":"COVID-19 pandemic","revisions":[
			{"revid":989699374,"user":"Vandal","timestamp":"2020-11-20T10:00:00Z","comment":"blanked"}]}]}}`)
	})

	key := core.RevisionKey{Wiki: "enwiki", RevisionID: 989699374}
	got, err := c.LookupRevisions(context.Background(), []core.RevisionKey{key})
	require.NoError(t, err)
	require.Contains(t, got, key)
	assert.Equal(t, "COVID-19 pandemic", got[key].Title)
	assert.Equal(t, "Vandal", got[key].User)
}

func TestClient_UserInfoSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"query":{"userinfo":{"name":"Alice","rights":["edit","rollback"],"groups":["rollbacker"]}}}`)
	})

	info, err := c.UserInfo(context.Background(), "enwiki", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.Name)
	assert.Contains(t, info.Rights, "rollback")
}

func TestClient_Undo(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		wantErr  bool
		apiError bool
	}{
		{name: "success", response: `{"edit":{"result":"Success","newrevid":1001}}`, status: http.StatusOK},
		{name: "api error", response: `{"error":{"code":"undofailure","info":"cannot undo"}}`, status: http.StatusOK, wantErr: true, apiError: true},
		{name: "edit not successful", response: `{"edit":{"result":"Failure"}}`, status: http.StatusOK, wantErr: true, apiError: true},
		{name: "server error", response: `oops`, status: http.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "edit", r.PostForm.Get("action"))
				assert.Equal(t, "42", r.PostForm.Get("undo"))
				assert.Equal(t, "WikiLoop Battlefield", r.PostForm.Get("tags"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.response)
			})

			res, err := c.Undo(context.Background(), "enwiki", "secret", UndoRequest{
				Title: "Page", RevisionID: 42, Summary: "undo", Tags: "WikiLoop Battlefield", Token: "tok+\\",
			})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, int64(1001), res.NewRevID)
				return
			}
			require.Error(t, err)
			var apiErr *APIError
			assert.Equal(t, tt.apiError, errors.As(err, &apiErr))
			if tt.apiError {
				assert.Equal(t, tt.response, string(apiErr.Payload))
			}
		})
	}
}

func TestClient_UnknownWiki(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.CSRFToken(context.Background(), "nosuch", "")
	require.ErrorIs(t, err, core.ErrMalformedInput)
}
