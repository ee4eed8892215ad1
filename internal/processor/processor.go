// Package processor answers the read-only video endpoints: info with an AI
// summary, URL-only analysis and format listings.
package processor

import (
	"context"
	"errors"

	"github.com/tubelens/backend/internal/cache"
	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/summary"
	"github.com/tubelens/backend/internal/validators"
	"github.com/tubelens/backend/internal/ytdlp"
)

// UnknownTitle stands in when the title lookup fails.
const UnknownTitle = "Unknown Title"

const statusCompleted = "completed"

// Source is the subset of the downloader used for lookups.
type Source interface {
	GetTitle(ctx context.Context, sourceURL string) (string, error)
	GetMetadata(ctx context.Context, sourceURL string) (*ytdlp.Metadata, error)
	ListFormats(ctx context.Context, sourceURL string) (*ytdlp.FormatList, error)
}

// Summarizer turns a prompt into a summary. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) summary.Result
}

// VideoInfo is the response of the info endpoint.
type VideoInfo struct {
	Title     string   `json:"title"`
	AISummary string   `json:"aiSummary"`
	KeyPoints []string `json:"keyPoints"`
	Topics    []string `json:"topics"`
	Duration  float64  `json:"duration"`
	Status    string   `json:"status"`
}

// Analysis is the response of the URL-only analysis endpoint.
type Analysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
	Topics    []string `json:"topics"`
	Status    string   `json:"status"`
}

type Processor struct {
	source     Source
	summarizer Summarizer
	cache      *cache.Cache
	log        *logger.Logger
}

// New creates a Processor. c may be nil to disable caching.
func New(source Source, summarizer Summarizer, c *cache.Cache, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Default()
	}
	return &Processor{
		source:     source,
		summarizer: summarizer,
		cache:      c,
		log:        log.WithComponent("processor"),
	}
}

// Info looks up the title and metadata of a video and summarizes it. Lookup
// failures degrade the answer rather than fail it.
func (p *Processor) Info(ctx context.Context, rawURL string) *VideoInfo {
	url := validators.Canonicalize(rawURL)

	title, err := p.source.GetTitle(ctx, url)
	if err != nil {
		p.log.Warn(ctx, "title lookup failed", map[string]interface{}{"url": url, "error": err.Error()})
		title = UnknownTitle
	}

	meta := p.metadata(ctx, url)

	var prompt string
	var duration float64
	if meta != nil {
		prompt = summary.MetadataPrompt(title, meta)
		duration = meta.Duration
	} else {
		prompt = summary.TitlePrompt(title)
	}

	result := p.summarizer.Summarize(ctx, prompt)
	return &VideoInfo{
		Title:     title,
		AISummary: result.Summary,
		KeyPoints: result.KeyPoints,
		Topics:    result.Topics,
		Duration:  duration,
		Status:    statusCompleted,
	}
}

func (p *Processor) metadata(ctx context.Context, url string) *ytdlp.Metadata {
	key := cache.Key("metadata", url)

	var meta ytdlp.Metadata
	if p.cache.GetJSON(ctx, key, &meta) {
		return &meta
	}

	m, err := p.source.GetMetadata(ctx, url)
	if err != nil {
		p.log.Warn(ctx, "metadata lookup failed", map[string]interface{}{"url": url, "error": err.Error()})
		return nil
	}

	if err := p.cache.SetJSON(ctx, key, m); err != nil {
		p.log.Debug(ctx, "failed to cache metadata", map[string]interface{}{"error": err.Error()})
	}
	return m
}

// Analyze summarizes a video from its URL alone.
func (p *Processor) Analyze(ctx context.Context, url string) *Analysis {
	result := p.summarizer.Summarize(ctx, summary.URLPrompt(url))
	return &Analysis{
		Summary:   result.Summary,
		KeyPoints: result.KeyPoints,
		Topics:    result.Topics,
		Status:    statusCompleted,
	}
}

// Formats lists the video renditions available for a URL.
func (p *Processor) Formats(ctx context.Context, rawURL string) (*ytdlp.FormatList, error) {
	url := validators.Canonicalize(rawURL)
	key := cache.Key("formats", url)

	var cached ytdlp.FormatList
	if p.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	list, err := p.source.ListFormats(ctx, url)
	if err != nil {
		p.log.Warn(ctx, "format listing failed", map[string]interface{}{"url": url, "error": err.Error()})
		if errors.Is(err, ytdlp.ErrTimeout) {
			return nil, apperrors.ExternalTimeout("yt-dlp").WithCause(err)
		}
		return nil, apperrors.UpstreamToolError("Failed to get video formats").WithCause(err)
	}

	if err := p.cache.SetJSON(ctx, key, list); err != nil {
		p.log.Debug(ctx, "failed to cache formats", map[string]interface{}{"error": err.Error()})
	}
	return list, nil
}
