package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestPlaceholderFeed(t *testing.T) {
	feed := service.NewInstagramFeed("http://localhost", "client", "secret", "http://localhost/callback")

	records := feed.PlaceholderFeed(9)
	assert.Len(t, records, 9)

	seen := map[string]bool{}
	for _, record := range records {
		assert.Equal(t, 480, record.Width)
		assert.Equal(t, 600, record.Height)
		assert.False(t, record.IsUserUploaded)
		assert.True(t, strings.HasPrefix(record.PreviewURI, "data:image/svg+xml;base64,"))
		assert.False(t, seen[record.Id])
		seen[record.Id] = true
	}
}

func TestExchangeAuthCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/access_token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.FormValue("code"))
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		fmt.Fprint(w, `{"access_token":"tok123","user_id":"42"}`)
	}))
	defer server.Close()

	feed := service.NewInstagramFeed(server.URL, "client", "secret", "http://localhost/callback")

	token, err := feed.ExchangeAuthCode(context.Background(), "the-code")
	assert.NoError(t, err)
	assert.Equal(t, "tok123", token)
}

func TestExchangeAuthCode_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	feed := service.NewInstagramFeed(server.URL, "client", "secret", "http://localhost/callback")

	_, err := feed.ExchangeAuthCode(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestFetchMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/media", r.URL.Path)
		assert.Equal(t, "tok123", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"data":[
			{"id":"m1","media_type":"IMAGE","media_url":"https://cdn.example.com/m1.jpg"},
			{"id":"m2","media_type":"VIDEO","media_url":"https://cdn.example.com/m2.mp4","thumbnail_url":"https://cdn.example.com/m2.jpg"},
			{"id":"m3","media_type":"IMAGE"}
		]}`)
	}))
	defer server.Close()

	feed := service.NewInstagramFeed(server.URL, "client", "secret", "http://localhost/callback")

	records, err := feed.FetchMedia(context.Background(), "tok123")
	assert.NoError(t, err)
	assert.Len(t, records, 2) // m3 has no URL at all and is skipped

	assert.Equal(t, "m1", records[0].Id)
	assert.Equal(t, "https://cdn.example.com/m1.jpg", records[0].PreviewURI)
	// Videos use the thumbnail as preview
	assert.Equal(t, "https://cdn.example.com/m2.jpg", records[1].PreviewURI)
	assert.False(t, records[0].IsUserUploaded)
}

func TestAccountFeed_CacheHit(t *testing.T) {
	svc, _, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	cached := []models.ImageRecord{feedImage("f1")}
	cachedBytes, err := json.Marshal(cached)
	assert.NoError(t, err)

	mockCache.On("GetFeed", ctx, "acct1").Return(cachedBytes, nil)

	feed, err := svc.AccountFeed(ctx, testUser(), "acct1", "")
	assert.NoError(t, err)
	assert.Len(t, feed, 1)
	assert.Equal(t, "f1", feed[0].Id)
	mockCache.AssertNotCalled(t, "SetFeed", mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountFeed_MissServesPlaceholderAndCaches(t *testing.T) {
	svc, _, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	mockCache.On("GetFeed", ctx, "acct1").Return(nil, nil)
	mockCache.On("SetFeed", ctx, "acct1", mock.Anything).Return(nil)

	feed, err := svc.AccountFeed(ctx, testUser(), "acct1", "")
	assert.NoError(t, err)
	assert.Len(t, feed, 9)
	mockCache.AssertCalled(t, "SetFeed", ctx, "acct1", mock.Anything)
}

func TestAccountFeed_FetchErrorFallsBackToPlaceholder(t *testing.T) {
	svc, _, mockCache, _, _ := setupService(t)
	ctx := context.Background()

	// Feed client points at a dead endpoint; the fetch fails
	mockCache.On("GetFeed", ctx, "acct1").Return(nil, nil)
	mockCache.On("SetFeed", ctx, "acct1", mock.Anything).Return(nil)

	feed, err := svc.AccountFeed(ctx, testUser(), "acct1", "some-token")
	assert.NoError(t, err)
	assert.Len(t, feed, 9)
}
