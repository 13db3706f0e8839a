package pipeline

import (
	"catchup/internal/clients"
	"catchup/internal/clients/ffmpeg"
	"catchup/internal/clients/mistral"
	"catchup/internal/clients/ytdlp"
	"catchup/internal/config"
)

// BuildClientSet assembles the capability set selected by configuration:
// deterministic fakes, or yt-dlp, ffmpeg, and the Mistral API.
func BuildClientSet(cfg *config.Config) clients.Set {
	if cfg.Clients.Mode == config.ClientModeFake {
		return clients.NewFakeSet(cfg.Clients.FakeDurationSec)
	}

	media := ffmpeg.NewCLI()
	api := mistral.NewClient(mistral.Config{
		APIKey:             cfg.Clients.MistralAPIKey,
		BaseURL:            cfg.Clients.MistralAPIBase,
		TranscriptionModel: cfg.Clients.MistralModel,
		SummaryModel:       cfg.Clients.SummaryModel,
	})
	return clients.Set{
		Downloader:  ytdlp.NewCLI(ytdlp.WithCookies(cfg.Paths.CookiesPath)),
		Converter:   media,
		VAD:         media,
		Transcriber: api,
		Summarizer:  api,
	}
}
