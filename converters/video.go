package converters

import (
	"context"
	"fmt"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/internal/ffprobe"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

type videoCodec struct {
	video, audio string
	qualityCRF   string
	compressCRF  string
	audioRate    string
	extra        []string
}

// videoCodecs maps target containers to encoders.
var videoCodecs = map[string]videoCodec{
	"mp4":  {video: "libx264", audio: "aac", qualityCRF: "18", compressCRF: "28", audioRate: "192k", extra: []string{"-movflags", "+faststart", "-pix_fmt", "yuv420p"}},
	"mov":  {video: "libx264", audio: "aac", qualityCRF: "18", compressCRF: "28", audioRate: "192k", extra: []string{"-pix_fmt", "yuv420p"}},
	"webm": {video: "libvpx-vp9", audio: "libopus", qualityCRF: "24", compressCRF: "38", audioRate: "128k", extra: []string{"-b:v", "0"}},
}

// Video transcodes between video containers with ffmpeg.
func Video(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "video-convert",
			Name:        "Video transcoder",
			Description: "Remuxes or re-encodes video for mp4, webm and mov",
			Category:    "video file",
			From:        []string{"mp4", "webm", "mov", "mkv", "avi"},
			To:          []string{"mp4", "webm", "mov"},
			Strategies: []model.Strategy{
				{ID: "fast", Description: "Stream copy into the target container", When: "codecs are already compatible",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "quality", Description: "High-quality re-encode", When: "codecs differ and fidelity matters",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedSlow, Quality: model.QualityHigh},
				{ID: "compress", Description: "Size-optimized re-encode", When: "the output must be small",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityMedium},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return transcodeVideo(ctx, kit, ws, input, strategy, opts)
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, _ := evaluation.CheckNonEmpty(output, 0)
			return issues
		},
	}
}

func transcodeVideo(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	in, err := ws.Materialize(input, "input."+ext(input.Format, "bin"))
	if err != nil {
		return model.ExecuteResult{}, err
	}
	out := ws.Path("output." + opts.Target)

	args, err := videoArgs(strategy, opts)
	if err != nil {
		return model.ExecuteResult{}, err
	}
	if _, err := kit.run(ctx, deps.EngineFFmpeg, ffmpegArgs(in, out, args...), subprocess.Options{}); err != nil {
		return model.ExecuteResult{}, err
	}

	metadata := map[string]any{"engine": deps.EngineFFmpeg, "args": args}
	if probe, err := kit.probe(ctx, out); err == nil {
		metadata["durationSeconds"] = probe.DurationSeconds()
		metadata["videoStreams"] = probe.VideoStreamCount()
		metadata["audioStreams"] = probe.AudioStreamCount()
	}

	artifact, err := ws.Collect(out, opts.Target, opts)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}
	return model.ExecuteResult{Output: artifact, Metadata: metadata}, nil
}

func videoArgs(strategy string, opts converter.Options) ([]string, error) {
	codec, ok := videoCodecs[opts.Target]
	if !ok {
		return nil, converter.UnsupportedTarget("video", opts.Target)
	}

	switch strategy {
	case "fast":
		return []string{"-c", "copy", "-map", "0"}, nil
	case "quality":
		args := []string{"-c:v", codec.video, "-crf", opts.String("crf", codec.qualityCRF)}
		if codec.video == "libx264" {
			args = append(args, "-preset", "slow")
		}
		args = append(args, codec.extra...)
		return append(args, "-c:a", codec.audio, "-b:a", codec.audioRate), nil
	case "compress":
		args := []string{"-c:v", codec.video, "-crf", opts.String("crf", codec.compressCRF)}
		if codec.video == "libx264" {
			args = append(args, "-preset", "medium")
		}
		if height := opts.Int("maxHeight", 720); height > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", height))
		}
		args = append(args, codec.extra...)
		return append(args, "-c:a", codec.audio, "-b:a", "96k"), nil
	default:
		return nil, converter.InvalidInput("unknown video strategy %q", strategy)
	}
}

// probe inspects a media file; callers treat failures as missing metadata.
func (k Kit) probe(ctx context.Context, path string) (ffprobe.Result, error) {
	bin, err := k.binary(deps.EngineFFprobe)
	if err != nil {
		return ffprobe.Result{}, err
	}
	return ffprobe.Inspect(ctx, k.Runner, bin, path)
}
