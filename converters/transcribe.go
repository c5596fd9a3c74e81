package converters

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

// CodeTranscriptTooShort flags transcripts under minTranscript characters.
const CodeTranscriptTooShort = "TRANSCRIPT_TOO_SHORT"

const minTranscript = 10

// Transcribe turns speech into text through the facade's transcriber.
func Transcribe(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "audio-transcribe",
			Name:        "Audio transcription",
			Description: "Transcribes spoken audio to text or Markdown",
			Category:    "audio recording",
			From:        []string{"mp3", "wav", "m4a", "ogg", "webm"},
			To:          []string{"txt", "md"},
			Strategies: []model.Strategy{
				{ID: "whisper", Description: "Send the recording as-is", When: "clean speech in a supported container",
					Engine: "whisper", Mode: model.ModeGenerative, Speed: model.SpeedMedium, Quality: model.QualityHigh},
				{ID: "whisper-normalized", Description: "Resample to 16 kHz mono wav before transcribing", When: "odd codecs, stereo or noisy recordings",
					Engine: "ffmpeg+whisper", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityHigh},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return transcribe(ctx, kit, ws, input, strategy, opts)
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, ok := evaluation.CheckNonEmpty(output, 0)
			if !ok {
				return issues
			}
			data, err := output.Bytes()
			if err != nil {
				return append(issues, evaluation.Error(evaluation.CodeEvaluationFailed, err.Error(), true))
			}
			if n := utf8.RuneCount([]byte(strings.TrimSpace(string(data)))); n < minTranscript {
				issues = append(issues, evaluation.Suggest(evaluation.Warning(CodeTranscriptTooShort,
					fmt.Sprintf("transcript has only %d characters", n), true), "whisper-normalized"))
			}
			return issues
		},
	}
}

func transcribe(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	in, err := ws.Materialize(input, "input."+ext(input.Format, "mp3"))
	if err != nil {
		return model.ExecuteResult{}, err
	}

	switch strategy {
	case "whisper":
	case "whisper-normalized":
		wav := ws.Path("normalized.wav")
		if _, err := kit.run(ctx, deps.EngineFFmpeg, ffmpegArgs(in, wav, "-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le"), subprocess.Options{}); err != nil {
			return model.ExecuteResult{}, err
		}
		in = wav
	default:
		return model.ExecuteResult{}, converter.InvalidInput("unknown transcription strategy %q", strategy)
	}

	text, err := kit.LLM.Transcribe(ctx, in, llm.TranscriptionOptions{
		Language: opts.String("language", ""),
		Prompt:   opts.String("prompt", ""),
		Format:   "text",
	})
	if err != nil {
		return model.ExecuteResult{}, aiError("transcribe", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, fmt.Errorf("transcriber returned no text"))
	}
	words := len(strings.Fields(text))
	if opts.Target == "md" {
		text = "# Transcript\n\n" + text
	}
	return model.ExecuteResult{
		Output:   model.BytesArtifact([]byte(text+"\n"), opts.Target),
		Metadata: map[string]any{"words": words},
	}, nil
}
