package youtube

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/goquery"
	"github.com/mmcdole/gofeed"
	"google.golang.org/api/youtube/v3"
)

var _ ragkb.ChannelCrawler = (*ChannelCrawler)(nil)

// playlistPageSize is the Data API maximum for playlist item pages.
const playlistPageSize = 50

// ChannelCrawler lists a channel's most recent uploads.
type ChannelCrawler struct {
	// Service is the Data API client. When nil the channel RSS feed is
	// used, which only lists the latest uploads.
	Service *youtube.Service

	// Fetcher retrieves channel pages and feeds.
	Fetcher ragkb.Fetcher

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	Logger *slog.Logger
}

// NewChannelCrawler creates a ChannelCrawler. svc may be nil.
func NewChannelCrawler(svc *youtube.Service, fetcher ragkb.Fetcher, logger *slog.Logger) *ChannelCrawler {
	return &ChannelCrawler{Service: svc, Fetcher: fetcher, Logger: logger}
}

// DiscoverVideos returns up to max watch URLs for the channel at
// channelURL, newest first.
func (c *ChannelCrawler) DiscoverVideos(ctx context.Context, channelURL string, max int) ([]string, error) {
	channelID, err := c.channelID(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	var urls []string
	if c.Service != nil {
		urls, err = c.uploads(ctx, channelURL, channelID, max)
	} else {
		urls, err = c.feed(ctx, channelURL, channelID)
	}
	if err != nil {
		return nil, err
	}
	if max > 0 && len(urls) > max {
		urls = urls[:max]
	}
	c.logger().Debug("channel videos discovered", "channel", channelID, "count", len(urls))
	return urls, nil
}

// channelID resolves /channel/<id>, /@handle, /c/<name> and /user/<name>
// URLs to a channel ID.
func (c *ChannelCrawler) channelID(ctx context.Context, channelURL string) (string, error) {
	u, err := url.Parse(channelURL)
	if err != nil {
		return "", &ragkb.ScrapeError{URL: channelURL, Err: errors.New("invalid channel URL")}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", &ragkb.ScrapeError{URL: channelURL, Err: errors.New("invalid channel URL")}
	}

	switch {
	case parts[0] == "channel" && len(parts) > 1:
		return parts[1], nil
	case strings.HasPrefix(parts[0], "@"):
		if c.Service != nil {
			return c.lookup(ctx, channelURL, c.Service.Channels.List([]string{"id"}).ForHandle(parts[0]))
		}
	case parts[0] == "user" && len(parts) > 1:
		if c.Service != nil {
			return c.lookup(ctx, channelURL, c.Service.Channels.List([]string{"id"}).ForUsername(parts[1]))
		}
	case parts[0] == "c" && len(parts) > 1:
	default:
		return "", &ragkb.ScrapeError{URL: channelURL, Err: errors.New("invalid channel URL")}
	}
	return c.pageChannelID(ctx, channelURL, strings.Join(parts[:min(len(parts), 2)], "/"))
}

func (c *ChannelCrawler) lookup(ctx context.Context, channelURL string, call *youtube.ChannelsListCall) (string, error) {
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return "", classifyAPIError(ctx, channelURL, "list channels", err)
	}
	if len(resp.Items) == 0 {
		return "", &ragkb.ScrapeError{URL: channelURL, Err: errors.New("channel not found")}
	}
	return resp.Items[0].Id, nil
}

// pageChannelID reads the channel ID from the channel page metadata.
func (c *ChannelCrawler) pageChannelID(ctx context.Context, channelURL, path string) (string, error) {
	page, err := c.Fetcher.Fetch(ctx, c.baseURL()+"/"+path)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ragkb.NewScrapeError(channelURL, err)
	}
	if id := goquery.Attr(page, `meta[itemprop="identifier"]`, "content"); id != "" {
		return id, nil
	}
	if id := goquery.Attr(page, `meta[itemprop="channelId"]`, "content"); id != "" {
		return id, nil
	}
	canonical := goquery.Attr(page, `link[rel="canonical"]`, "href")
	if i := strings.Index(canonical, "/channel/"); i >= 0 {
		return strings.Trim(canonical[i+len("/channel/"):], "/"), nil
	}
	return "", &ragkb.ScrapeError{URL: channelURL, Err: errors.New("channel not found")}
}

// uploads pages through the channel's uploads playlist.
func (c *ChannelCrawler) uploads(ctx context.Context, channelURL, channelID string, max int) ([]string, error) {
	resp, err := c.Service.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIError(ctx, channelURL, "list channels", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		return nil, &ragkb.ScrapeError{URL: channelURL, Err: errors.New("channel not found")}
	}
	playlistID := resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if playlistID == "" {
		return nil, &ragkb.ScrapeError{URL: channelURL, Err: errors.New("uploads playlist not found")}
	}

	var urls []string
	pageToken := ""
	for {
		call := c.Service.PlaylistItems.
			List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(playlistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, classifyAPIError(ctx, channelURL, "list playlist items", err)
		}
		for _, item := range page.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			urls = append(urls, WatchURL(item.ContentDetails.VideoId))
		}
		if page.NextPageToken == "" || (max > 0 && len(urls) >= max) {
			return urls, nil
		}
		pageToken = page.NextPageToken
	}
}

// feed reads the channel's RSS feed.
func (c *ChannelCrawler) feed(ctx context.Context, channelURL, channelID string) ([]string, error) {
	data, err := c.Fetcher.Fetch(ctx, c.baseURL()+"/feeds/videos.xml?channel_id="+url.QueryEscape(channelID))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragkb.NewScrapeError(channelURL, err)
	}
	f, err := gofeed.NewParser().ParseString(data)
	if err != nil {
		return nil, &ragkb.ScrapeError{URL: channelURL, Err: err}
	}

	var urls []string
	for _, item := range f.Items {
		link := strings.TrimSpace(item.Link)
		if id, ok := ragkb.YouTubeVideoID(link); ok {
			urls = append(urls, WatchURL(id))
		}
	}
	return urls, nil
}

func (c *ChannelCrawler) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (c *ChannelCrawler) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}
