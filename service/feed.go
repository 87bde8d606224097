package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/pregram/pregram/models"
)

type FeedProvider interface {
	PlaceholderFeed(count int) []models.ImageRecord
	ExchangeAuthCode(ctx context.Context, code string) (string, error)
	FetchMedia(ctx context.Context, accessToken string) ([]models.ImageRecord, error)
}

// InstagramFeed talks to an Instagram-shaped media API. The base URL is
// configurable so dev environments can point it at a stub server.
type InstagramFeed struct {
	BaseURL      string
	ClientId     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client
}

func NewInstagramFeed(baseURL string, clientId string, clientSecret string, redirectURI string) *InstagramFeed {
	return &InstagramFeed{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientId:     clientId,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

const (
	placeholderWidth  = 480
	placeholderHeight = 600
)

// PlaceholderFeed stands in for a real feed when an account has no
// media connection yet: 9 posts in the standard grid aspect.
func (f *InstagramFeed) PlaceholderFeed(count int) []models.ImageRecord {
	feed := make([]models.ImageRecord, 0, count)
	for i := 1; i <= count; i++ {
		id, err := uuid.NewV4()
		if err != nil {
			continue
		}
		feed = append(feed, models.ImageRecord{
			Id:             id.String(),
			PreviewURI:     placeholderURI(placeholderWidth, placeholderHeight, fmt.Sprintf("Post %d", i)),
			Width:          placeholderWidth,
			Height:         placeholderHeight,
			IsUserUploaded: false,
		})
	}
	return feed
}

func placeholderURI(width int, height int, label string) string {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="100%%" height="100%%" fill="#e2e2e2"/><text x="50%%" y="50%%" dominant-baseline="middle" text-anchor="middle" fill="#777777" font-family="sans-serif" font-size="24">%s</text></svg>`, width, height, label)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
}

func (f *InstagramFeed) ExchangeAuthCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", f.ClientId)
	form.Set("client_secret", f.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", f.RedirectURI)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, "POST", f.BaseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tokenResp accessTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.AccessToken == "" {
		return "", errors.New("token exchange returned no access token")
	}

	return tokenResp.AccessToken, nil
}

type mediaItem struct {
	Id           string `json:"id"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type mediaResponse struct {
	Data []mediaItem `json:"data"`
}

func (f *InstagramFeed) FetchMedia(ctx context.Context, accessToken string) ([]models.ImageRecord, error) {
	reqURL := f.BaseURL + "/me/media?fields=id,media_type,media_url,thumbnail_url&access_token=" + url.QueryEscape(accessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var mediaResp mediaResponse
	if err := json.Unmarshal(body, &mediaResp); err != nil {
		return nil, err
	}

	feed := make([]models.ImageRecord, 0, len(mediaResp.Data))
	for _, item := range mediaResp.Data {
		preview := item.MediaURL
		if item.MediaType == "VIDEO" && item.ThumbnailURL != "" {
			preview = item.ThumbnailURL
		}
		if preview == "" {
			continue
		}
		feed = append(feed, models.ImageRecord{
			Id:         item.Id,
			PreviewURI: preview,
			// The media endpoint does not report dimensions; assume the
			// standard grid aspect
			Width:          placeholderWidth,
			Height:         placeholderHeight,
			IsUserUploaded: false,
		})
	}

	return feed, nil
}

// AccountFeed returns the cached feed snapshot for an account, fetching
// and caching it on a miss. Without an access token the placeholder
// feed is served.
func (s *Service) AccountFeed(ctx context.Context, user models.User, accountId string, accessToken string) ([]models.ImageRecord, error) {
	if cached, err := s.Cache.GetFeed(ctx, accountId); err == nil && cached != nil {
		var feed []models.ImageRecord
		if err := json.Unmarshal(cached, &feed); err == nil {
			return feed, nil
		}
	}

	var feed []models.ImageRecord
	if accessToken == "" {
		feed = s.Feed.PlaceholderFeed(placeholderFeedSize)
	} else {
		var err error
		feed, err = s.Feed.FetchMedia(ctx, accessToken)
		if err != nil {
			log.Printf("Falling back to placeholder feed for account %s: %v", accountId, err)
			feed = s.Feed.PlaceholderFeed(placeholderFeedSize)
		}
	}

	if feedBytes, err := json.Marshal(feed); err == nil {
		s.Cache.SetFeed(ctx, accountId, feedBytes)
	}

	return feed, nil
}
