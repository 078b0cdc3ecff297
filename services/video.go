package services

import (
	"context"
	"net/http"
	"strings"

	"fashionstudio/models"
)

// GatewayDownloader fetches upstream result URIs through the gateway so the
// key travels in a header, never in a URL the browser can see.
type GatewayDownloader struct {
	Client    *http.Client
	Upstream  string
	KeyHeader string
}

// GatewayURL rewrites an upstream URI to its gateway equivalent. The second
// value is false when uri does not live on the upstream origin.
func (d *GatewayDownloader) GatewayURL(session models.SessionConfig, uri string) (string, bool) {
	origin := strings.TrimRight(d.Upstream, "/")
	if !strings.HasPrefix(uri, origin+"/") {
		return uri, false
	}
	return strings.TrimRight(session.GatewayBase(), "/") + "/api" + strings.TrimPrefix(uri, origin), true
}

func (d *GatewayDownloader) Download(ctx context.Context, session models.SessionConfig, uri string) (models.MediaResult, error) {
	target, viaGateway := d.GatewayURL(session, uri)
	var headers map[string]string
	if viaGateway {
		headers = map[string]string{d.KeyHeader: string(session.APIKey())}
	}
	data, mimeType, err := ReadFileFromUrl(ctx, d.Client, providerGemini, target, headers)
	if err != nil {
		return models.MediaResult{}, err
	}
	return models.MediaResult{Data: data, MIMEType: mimeType, SourceURI: uri}, nil
}

type MediaDownloader interface {
	Download(ctx context.Context, session models.SessionConfig, uri string) (models.MediaResult, error)
}

// VideoService is submit, poll and download in one call.
type VideoService struct {
	Poller     *VideoPoller
	Downloader MediaDownloader
}

func (s *VideoService) Generate(ctx context.Context, session models.SessionConfig, req models.VideoRequest) (models.MediaResult, PollResult, error) {
	result, err := s.Poller.Run(ctx, session, req)
	if err != nil {
		return models.MediaResult{}, result, err
	}
	media, err := s.Downloader.Download(ctx, session, result.Operation.ResultURI)
	if err != nil {
		return models.MediaResult{}, result, err
	}
	if media.MIMEType == "" || strings.HasPrefix(media.MIMEType, "text/plain") {
		media.MIMEType = "video/mp4"
	}
	return media, result, nil
}
