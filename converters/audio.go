package converters

import (
	"context"
	"fmt"
	"strconv"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

var audioFormats = []string{"mp3", "wav", "ogg", "opus", "flac", "aac", "m4a"}

type audioCodec struct {
	codec      string
	bitrate    string
	sampleRate int
}

// audioCodecs are the per-container settings used by the optimized strategy.
var audioCodecs = map[string]audioCodec{
	"mp3":  {codec: "libmp3lame", bitrate: "192k", sampleRate: 44100},
	"wav":  {codec: "pcm_s16le", sampleRate: 44100},
	"ogg":  {codec: "libvorbis", bitrate: "160k", sampleRate: 44100},
	"opus": {codec: "libopus", bitrate: "96k", sampleRate: 48000},
	"flac": {codec: "flac", sampleRate: 44100},
	"aac":  {codec: "aac", bitrate: "192k", sampleRate: 44100},
	"m4a":  {codec: "aac", bitrate: "192k", sampleRate: 44100},
}

// DefaultLoudness is the integrated loudness target of the normalized strategy, in LUFS.
const DefaultLoudness = -16.0

// Audio transcodes between audio containers with ffmpeg.
func Audio(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "audio-convert",
			Name:        "Audio converter",
			Description: "Transcodes audio between common containers",
			Category:    "audio file",
			From:        audioFormats,
			To:          audioFormats,
			Strategies: []model.Strategy{
				{ID: "direct", Description: "Straight transcode with encoder defaults", When: "the input is clean and speed matters",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityMedium},
				{ID: "normalized", Description: "Loudness-normalized transcode", When: "levels vary or playback volume matters",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityHigh},
				{ID: "optimized", Description: "Per-codec bitrate and sample-rate selection", When: "output size or compatibility matters",
					Engine: deps.EngineFFmpeg, Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityHigh},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return transcodeAudio(ctx, kit, ws, input, strategy, opts)
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, _ := evaluation.CheckNonEmpty(output, 100)
			return issues
		},
		Describe: func(input model.Artifact, _ map[string]any) string {
			return fmt.Sprintf("%s audio, %d bytes", ext(input.Format, "unknown"), input.Size())
		},
	}
}

func transcodeAudio(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	in, err := ws.Materialize(input, "input."+ext(input.Format, "bin"))
	if err != nil {
		return model.ExecuteResult{}, err
	}
	out := ws.Path("output." + opts.Target)

	args, err := audioArgs(strategy, opts)
	if err != nil {
		return model.ExecuteResult{}, err
	}
	if _, err := kit.run(ctx, deps.EngineFFmpeg, ffmpegArgs(in, out, args...), subprocess.Options{}); err != nil {
		return model.ExecuteResult{}, err
	}

	artifact, err := ws.Collect(out, opts.Target, opts)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}
	return model.ExecuteResult{
		Output:   artifact,
		Metadata: map[string]any{"engine": deps.EngineFFmpeg, "args": args},
	}, nil
}

// audioArgs returns the ffmpeg flags placed between input and output.
func audioArgs(strategy string, opts converter.Options) ([]string, error) {
	args := []string{"-vn"}
	codec := audioCodecs[opts.Target]

	switch strategy {
	case "direct":
	case "normalized":
		loudness := opts.Float("loudness", DefaultLoudness)
		args = append(args, "-af", fmt.Sprintf("loudnorm=I=%g:TP=-1.5:LRA=11", loudness))
		if codec.codec != "" {
			args = append(args, "-c:a", codec.codec)
		}
	case "optimized":
		if codec.codec != "" {
			args = append(args, "-c:a", codec.codec)
		}
		if bitrate := opts.String("bitrate", codec.bitrate); bitrate != "" && codec.codec != "pcm_s16le" && codec.codec != "flac" {
			args = append(args, "-b:a", bitrate)
		}
		if rate := opts.Int("sampleRate", codec.sampleRate); rate > 0 {
			args = append(args, "-ar", strconv.Itoa(rate))
		}
	default:
		return nil, converter.InvalidInput("unknown audio strategy %q", strategy)
	}

	if channels := opts.Int("channels", 0); channels > 0 {
		args = append(args, "-ac", strconv.Itoa(channels))
	}
	return args, nil
}
