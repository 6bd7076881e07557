package revert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
	"github.com/sevigo/revision-warden/internal/storage"
	"github.com/sevigo/revision-warden/internal/wiki"
	"github.com/sevigo/revision-warden/mocks"
)

var target = core.RevisionKey{Wiki: "enwiki", RevisionID: 989699374}

func revertConfig(allow ...string) config.RevertConfig {
	return config.RevertConfig{
		Window:     3 * time.Minute,
		MaxActions: 30,
		AllowList:  allow,
		Tags:       map[string]string{"enwiki": "WikiLoop Battlefield"},
		ToolName:   "[[m:WikiLoop DoubleCheck]]",
		Version:    "1.2.3",
	}
}

func newActuator(t *testing.T, cfg config.RevertConfig) (*Actuator, *mocks.MockClient, storage.AuditLog) {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	audit := storage.NewMemoryStore(storage.EvictionPolicy{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewActuator(client, audit, cfg, "battlefield.example", metrics.Nop(), logger), client, audit
}

func expectLookup(client *mocks.MockClient) {
	client.EXPECT().LookupRevisions(gomock.Any(), []core.RevisionKey{target}).Return(map[core.RevisionKey]core.RevisionInfo{
		target: {Wiki: "enwiki", RevisionID: target.RevisionID, Title: "COVID-19 pandemic", User: "Vandal"},
	}, nil)
}

func request(user string) core.RevertRequest {
	return core.RevertRequest{Wiki: "enwiki", RevisionID: target.RevisionID, ActingUser: user, Credential: "token-" + user}
}

func TestRevert_Authorization(t *testing.T) {
	tests := []struct {
		name        string
		allowList   []string
		rights      []string
		wantErr     error
		wantSuccess bool
	}{
		{name: "neither allow-listed nor rollbacker", rights: []string{"edit"}, wantErr: core.ErrForbidden},
		{name: "allow-listed only", allowList: []string{"Alice"}, rights: []string{"edit"}, wantSuccess: true},
		{name: "rollback right only", rights: []string{"edit", "rollback"}, wantSuccess: true},
		{name: "both", allowList: []string{"Alice"}, rights: []string{"rollback"}, wantSuccess: true},
		{name: "similar right name is not enough", rights: []string{"rollbacker"}, wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, client, audit := newActuator(t, revertConfig(tt.allowList...))
			expectLookup(client)
			client.EXPECT().UserInfo(gomock.Any(), "enwiki", "token-Alice").
				Return(&wiki.UserInfo{Name: "Alice", Rights: tt.rights}, nil)

			if tt.wantSuccess {
				gomock.InOrder(
					client.EXPECT().CSRFToken(gomock.Any(), "enwiki", "token-Alice").Return("csrf+\\", nil),
					client.EXPECT().Undo(gomock.Any(), "enwiki", "token-Alice", gomock.Any()).
						DoAndReturn(func(_ context.Context, _, _ string, req wiki.UndoRequest) (*wiki.EditResult, error) {
							assert.Equal(t, "COVID-19 pandemic", req.Title)
							assert.Equal(t, int64(989699374), req.RevisionID)
							assert.Equal(t, "csrf+\\", req.Token)
							assert.Equal(t, "WikiLoop Battlefield", req.Tags)
							assert.Equal(t, "Identified as test/vandalism and undid revision 989699374 by [[User:Vandal]] "+
								"with [[m:WikiLoop DoubleCheck]](v1.2.3). See it or provide your opinion at "+
								"http://battlefield.example/revision/enwiki/989699374", req.Summary)
							return &wiki.EditResult{Result: "Success", NewRevID: 1, Raw: json.RawMessage(`{"edit":{"result":"Success"}}`)}, nil
						}),
				)
			}

			res, err := a.Revert(context.Background(), request("Alice"))
			entries, auditErr := audit.ListReverts(context.Background(), target)
			require.NoError(t, auditErr)
			require.Len(t, entries, 1)

			if !tt.wantSuccess {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, core.RevertRejected, entries[0].State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, core.RevertSucceeded, res.State)
			assert.JSONEq(t, `{"edit":{"result":"Success"}}`, string(res.Upstream))
			assert.Equal(t, core.RevertSucceeded, entries[0].State)
			assert.Equal(t, "Alice", entries[0].ActingUser)
		})
	}
}

func TestRevert_AllowListIgnoresClaimedUser(t *testing.T) {
	a, client, audit := newActuator(t, revertConfig("Alice"))
	expectLookup(client)
	client.EXPECT().UserInfo(gomock.Any(), "enwiki", "token-Alice").Return(&wiki.UserInfo{}, nil)

	_, err := a.Revert(context.Background(), request("Alice"))
	require.ErrorIs(t, err, core.ErrForbidden)

	entries, err := audit.ListReverts(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.RevertRejected, entries[0].State)
}

func TestRevert_TagOnlyOnConfiguredWiki(t *testing.T) {
	a, client, _ := newActuator(t, revertConfig())
	fr := core.RevisionKey{Wiki: "frwiki", RevisionID: 5}

	client.EXPECT().LookupRevisions(gomock.Any(), []core.RevisionKey{fr}).
		Return(map[core.RevisionKey]core.RevisionInfo{fr: {Title: "Paris", User: "X"}}, nil)
	client.EXPECT().UserInfo(gomock.Any(), "frwiki", gomock.Any()).Return(&wiki.UserInfo{Name: "Bob", Rights: []string{"rollback"}}, nil)
	client.EXPECT().CSRFToken(gomock.Any(), "frwiki", gomock.Any()).Return("t", nil)
	client.EXPECT().Undo(gomock.Any(), "frwiki", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, req wiki.UndoRequest) (*wiki.EditResult, error) {
			assert.Empty(t, req.Tags)
			return &wiki.EditResult{Result: "Success"}, nil
		})

	_, err := a.Revert(context.Background(), core.RevertRequest{Wiki: "frwiki", RevisionID: 5, Credential: "c"})
	require.NoError(t, err)
}

func TestRevert_RateLimitedBeforeUpstream(t *testing.T) {
	cfg := revertConfig()
	cfg.MaxActions = 2
	a, client, audit := newActuator(t, cfg)

	client.EXPECT().LookupRevisions(gomock.Any(), gomock.Any()).Return(map[core.RevisionKey]core.RevisionInfo{}, nil).Times(2)

	for _, user := range []string{"Alice", "Bob"} {
		_, err := a.Revert(context.Background(), request(user))
		require.ErrorIs(t, err, core.ErrNotFound)
	}

	_, err := a.Revert(context.Background(), request("Carol"))
	require.ErrorIs(t, err, core.ErrRateLimited)
	var rl *core.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Positive(t, rl.RetryAfter)

	entries, err := audit.ListReverts(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, core.RevertRejected, entries[2].State)
}

func TestRevert_UpstreamRejectionCarriesPayload(t *testing.T) {
	a, client, audit := newActuator(t, revertConfig("Alice"))
	payload := []byte(`{"error":{"code":"undofailure","info":"The edit could not be undone due to conflicting intermediate edits."}}`)

	expectLookup(client)
	client.EXPECT().UserInfo(gomock.Any(), "enwiki", gomock.Any()).Return(&wiki.UserInfo{Name: "Alice"}, nil)
	client.EXPECT().CSRFToken(gomock.Any(), "enwiki", gomock.Any()).Return("t", nil)
	client.EXPECT().Undo(gomock.Any(), "enwiki", gomock.Any(), gomock.Any()).
		Return(nil, &wiki.APIError{Code: "undofailure", Info: "conflict", Payload: payload}).Times(1)

	_, err := a.Revert(context.Background(), request("Alice"))
	require.ErrorIs(t, err, core.ErrUpstreamRejected)

	var rejected *core.UpstreamRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, core.RevertEditSubmitted, rejected.Stage)
	assert.Equal(t, payload, rejected.Payload)

	entries, err := audit.ListReverts(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.RevertFailed, entries[0].State)
}

func TestRevert_TokenFailureStopsPipeline(t *testing.T) {
	a, client, _ := newActuator(t, revertConfig("Alice"))

	expectLookup(client)
	client.EXPECT().UserInfo(gomock.Any(), "enwiki", gomock.Any()).Return(&wiki.UserInfo{Name: "Alice"}, nil)
	client.EXPECT().CSRFToken(gomock.Any(), "enwiki", gomock.Any()).Return("", core.ErrTransientUpstream)

	_, err := a.Revert(context.Background(), request("Alice"))
	var rejected *core.UpstreamRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, core.RevertTokenAcquired, rejected.Stage)
}

func TestSlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewSlidingWindow(time.Minute, 2)
	w.now = func() time.Time { return now }

	ok, _ := w.Allow()
	assert.True(t, ok)
	now = now.Add(30 * time.Second)
	ok, _ = w.Allow()
	assert.True(t, ok)

	ok, retry := w.Allow()
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)

	now = now.Add(30 * time.Second)
	ok, _ = w.Allow()
	assert.True(t, ok, "first event left the window")
	ok, _ = w.Allow()
	assert.False(t, ok)
}
