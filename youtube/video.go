package youtube

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/goquery"
	"google.golang.org/api/youtube/v3"
)

var _ ragkb.Scraper = (*VideoScraper)(nil)

// VideoScraper scrapes a video's transcript and metadata.
type VideoScraper struct {
	// Service is the Data API client. When nil, title and description are
	// read from the watch page.
	Service *youtube.Service

	// Fetcher retrieves watch pages and caption tracks.
	Fetcher ragkb.Fetcher

	// Languages is the transcript preference order.
	Languages []string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	Logger *slog.Logger
}

// NewVideoScraper creates a VideoScraper. svc may be nil.
func NewVideoScraper(svc *youtube.Service, fetcher ragkb.Fetcher, languages []string, logger *slog.Logger) *VideoScraper {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return &VideoScraper{Service: svc, Fetcher: fetcher, Languages: languages, Logger: logger}
}

// videoMeta is what is known about a video before its transcript.
type videoMeta struct {
	title       string
	description string
	language    string
	publishedAt *time.Time
	info        ragkb.VideoInfo
}

// Scrape returns the transcript of the video at url. Videos without a
// usable transcript fall back to their title and description.
func (s *VideoScraper) Scrape(ctx context.Context, url string) (*ragkb.ScrapeResult, error) {
	videoID, ok := ragkb.YouTubeVideoID(url)
	if !ok {
		return nil, &ragkb.ScrapeError{URL: url, Err: errors.New("invalid YouTube video URL")}
	}

	meta := videoMeta{info: ragkb.VideoInfo{VideoID: videoID}}
	if s.Service != nil {
		if err := s.apiMetadata(ctx, url, videoID, &meta); err != nil {
			var se *ragkb.ScrapeError
			if !errors.As(err, &se) || se.Temporary {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger().Warn("video metadata unavailable", "video", videoID, "err", err)
			} else {
				return nil, err
			}
		}
	}

	page, err := s.Fetcher.Fetch(ctx, s.baseURL()+"/watch?v="+videoID+"&hl=en")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragkb.NewScrapeError(url, err)
	}
	if err := playability(page); err != nil {
		return nil, &ragkb.ScrapeError{URL: url, Err: err}
	}
	if meta.title == "" {
		meta.title = goquery.Attr(page, `meta[name="title"]`, "content")
	}
	if meta.description == "" {
		meta.description = goquery.Attr(page, `meta[name="description"]`, "content")
	}

	segments, lang := s.transcript(ctx, videoID, page)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	res := &ragkb.ScrapeResult{
		URL:         url,
		Title:       meta.title,
		Description: meta.description,
		Domain:      "youtube.com",
		Language:    meta.language,
		PublishedAt: meta.publishedAt,
		Video:       &meta.info,
		Extra:       map[string]string{},
	}

	if len(segments) > 0 {
		res.Content = transcriptText(segments)
		res.Video.HasTranscript = true
		res.Video.Segments = segments
		res.Extra["transcript_language"] = lang
		if lang != "auto" {
			res.Language = lang
		}
		return res, nil
	}

	if meta.title == "" && meta.description == "" {
		return nil, &ragkb.ScrapeError{URL: url, Err: errors.New("no transcript and no description available")}
	}
	title := meta.title
	if title == "" {
		title = "YouTube Video"
	}
	res.Content = "# " + title + "\n\n" + meta.description
	res.Extra["fallback"] = "description"
	return res, nil
}

// apiMetadata fills meta from the Data API.
func (s *VideoScraper) apiMetadata(ctx context.Context, url, videoID string, meta *videoMeta) error {
	resp, err := s.Service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return classifyAPIError(ctx, url, "list videos", err)
	}
	if len(resp.Items) == 0 {
		return &ragkb.ScrapeError{URL: url, Err: errors.New("video unavailable")}
	}

	v := resp.Items[0]
	if sn := v.Snippet; sn != nil {
		meta.title = sn.Title
		meta.description = sn.Description
		meta.language = baseLanguage(sn.DefaultAudioLanguage)
		meta.info.Channel = sn.ChannelTitle
		meta.info.ChannelID = sn.ChannelId
		meta.info.Tags = sn.Tags
		if t, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
			t = t.UTC()
			meta.publishedAt = &t
		}
	}
	if cd := v.ContentDetails; cd != nil {
		meta.info.Duration = cd.Duration
	}
	if st := v.Statistics; st != nil {
		meta.info.ViewCount = st.ViewCount
		meta.info.LikeCount = st.LikeCount
		meta.info.CommentCount = st.CommentCount
	}
	return nil
}

// transcript returns the preferred caption track's segments and its
// language. Any failure yields no segments.
func (s *VideoScraper) transcript(ctx context.Context, videoID, page string) ([]ragkb.TranscriptSegment, string) {
	tracks, err := captionTracks(page)
	if err != nil {
		s.logger().Debug("no caption tracks", "video", videoID, "err", err)
		return nil, ""
	}
	track, lang := chooseTrack(tracks, s.Languages)

	data, err := s.Fetcher.Fetch(ctx, track.BaseURL)
	if err != nil {
		s.logger().Warn("caption track fetch failed", "video", videoID, "lang", lang, "err", err)
		return nil, ""
	}
	segments, err := parseTimedText(data)
	if err != nil {
		s.logger().Warn("caption track unreadable", "video", videoID, "lang", lang, "err", err)
		return nil, ""
	}
	return segments, lang
}

// playability reports watch pages for videos that cannot be played.
func playability(page string) error {
	const marker = `"playabilityStatus":{"status":"`
	i := strings.Index(page, marker)
	if i < 0 {
		return nil
	}
	rest := page[i+len(marker):]
	status := rest[:max(strings.IndexByte(rest, '"'), 0)]
	switch status {
	case "ERROR", "UNPLAYABLE":
		return errors.New("video unavailable")
	case "LOGIN_REQUIRED":
		return errors.New("private video")
	}
	return nil
}

func (s *VideoScraper) baseURL() string {
	if s.BaseURL != "" {
		return strings.TrimSuffix(s.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (s *VideoScraper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}
