package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	youtube "github.com/kkdai/youtube/v2"
	zlog "github.com/rs/zerolog/log"
)

const extractorName = "youtube"

// YouTube resolves video and playlist URLs via the YouTube innertube API.
// With streaming enabled tracks carry a direct media URL opened on play;
// otherwise media is downloaded into mediaDir when the query is resolved.
type YouTube struct {
	client    youtube.Client
	http      *http.Client
	mediaDir  string
	streaming bool
}

// NewYouTube creates a resolver. mediaDir is only used when streaming is
// disabled.
func NewYouTube(mediaDir string, streaming bool) *YouTube {
	return &YouTube{
		client:    youtube.Client{},
		http:      http.DefaultClient,
		mediaDir:  mediaDir,
		streaming: streaming,
	}
}

// Resolve resolves a single video or playlist URL into playable entries.
func (y *YouTube) Resolve(ctx context.Context, query string) (*Result, error) {
	if !isMediaURL(query) {
		return nil, errors.Wrapf(ErrUnsupportedQuery, "%q is not a URL", query)
	}

	if isPlaylistURL(query) {
		return y.resolvePlaylist(ctx, query)
	}

	video, err := y.client.GetVideoContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving video %q", query)
	}
	entry, err := y.entryFromVideo(ctx, video)
	if err != nil {
		return nil, err
	}
	return &Result{Entries: []Entry{*entry}}, nil
}

// Candidates lists playlist items as metadata-only matches for the
// submitter to choose from. Free-text search is not supported by the
// innertube client; plain queries return ErrUnsupportedQuery.
func (y *YouTube) Candidates(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if !isPlaylistURL(query) {
		return nil, errors.Wrapf(ErrUnsupportedQuery, "%q has no candidate listing", query)
	}

	playlist, err := y.client.GetPlaylistContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving playlist %q", query)
	}

	out := make([]Candidate, 0, limit)
	for _, item := range playlist.Videos {
		if len(out) == limit {
			break
		}
		out = append(out, Candidate{
			Title:           item.Title,
			DurationSeconds: int(item.Duration.Seconds()),
			OriginURL:       watchURL(item.ID),
		})
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "playlist %q is empty", query)
	}
	return out, nil
}

func (y *YouTube) resolvePlaylist(ctx context.Context, query string) (*Result, error) {
	playlist, err := y.client.GetPlaylistContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving playlist %q", query)
	}

	result := &Result{PlaylistTitle: playlist.Title}
	for _, item := range playlist.Videos {
		video, err := y.client.VideoFromPlaylistEntryContext(ctx, item)
		if err != nil {
			zlog.Warn().Err(err).Msgf("skipping unresolvable playlist item %q", item.Title)
			result.FailedCount++
			continue
		}
		entry, err := y.entryFromVideo(ctx, video)
		if err != nil {
			zlog.Warn().Err(err).Msgf("skipping playlist item %q", item.Title)
			result.FailedCount++
			continue
		}
		result.Entries = append(result.Entries, *entry)
	}

	if len(result.Entries) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "no playable items in playlist %q", query)
	}
	return result, nil
}

func (y *YouTube) entryFromVideo(ctx context.Context, video *youtube.Video) (*Entry, error) {
	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, errors.Wrapf(ErrNoResults, "video %q has no audio formats", video.Title)
	}
	format := &formats[0]

	entry := &Entry{
		Title:           video.Title,
		DurationSeconds: int(video.Duration.Seconds()),
		OriginURL:       watchURL(video.ID),
		ExtractorName:   extractorName,
	}
	if len(video.Thumbnails) > 0 {
		entry.ThumbnailURL = video.Thumbnails[0].URL
	}

	if y.streaming {
		streamURL, err := y.client.GetStreamURLContext(ctx, video, format)
		if err != nil {
			return nil, errors.Wrapf(err, "getting stream URL for %q", video.Title)
		}
		entry.Source = NewRemoteSource(streamURL, y.http)
		return entry, nil
	}

	path, err := y.download(ctx, video, format)
	if err != nil {
		return nil, err
	}
	entry.Source = NewLocalSource(path)
	return entry, nil
}

// download preloads the media bytes to disk so playback never depends on
// the network.
func (y *YouTube) download(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error) {
	if err := os.MkdirAll(y.mediaDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating media dir %s", y.mediaDir)
	}

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", errors.Wrapf(err, "opening download stream for %q", video.Title)
	}
	defer stream.Close()

	path := filepath.Join(y.mediaDir, video.ID+mediaExt(format.MimeType))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating media file %s", path)
	}
	defer f.Close()

	n, err := io.Copy(f, stream)
	if err != nil {
		os.Remove(path)
		return "", errors.Wrapf(err, "downloading %q", video.Title)
	}
	zlog.Info().Msgf("preloaded %q (%d bytes) to %s", video.Title, n, path)
	return path, nil
}

func watchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

func isMediaURL(query string) bool {
	u, err := url.Parse(query)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func isPlaylistURL(query string) bool {
	u, err := url.Parse(query)
	if err != nil {
		return false
	}
	return u.Query().Get("list") != "" || strings.Contains(u.Path, "/playlist")
}

func mediaExt(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "audio/mp4"):
		return ".m4a"
	default:
		return ".media"
	}
}
