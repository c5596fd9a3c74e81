package converters

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

var imageFormats = []string{"png", "jpeg", "webp", "gif", "tiff", "bmp"}

// imageMagic lists accepted leading bytes per target format. WEBP is
// checked separately since its marker is not a prefix.
var imageMagic = map[string][][]byte{
	"png":  {{0x89, 0x50, 0x4E, 0x47}},
	"jpeg": {{0xFF, 0xD8, 0xFF}},
	"gif":  {[]byte("GIF")},
	"tiff": {{0x49, 0x49}, {0x4D, 0x4D}},
	"bmp":  {[]byte("BM")},
}

const defaultJPEGQuality = 82

// Image converts between raster formats. Decoding and encoding run
// in-process; webp output is encoded by ffmpeg.
func Image(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "image-convert",
			Name:        "Image converter",
			Description: "Converts raster images between png, jpeg, webp, gif, tiff and bmp",
			Category:    "image",
			From:        imageFormats,
			To:          imageFormats,
			Strategies: []model.Strategy{
				{ID: "direct", Description: "Decode and re-encode with format defaults", When: "a plain format change is enough",
					Engine: "go-image", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "optimized", Description: "Per-format tuning: compression level, quality, dithering", When: "size matters or the direct output is poor",
					Engine: "go-image", Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityHigh},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertImage(ctx, kit, ws, input, strategy, opts)
		},
		Checks:   imageChecks,
		Describe: describeImage,
	}
}

func convertImage(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	if strategy != "direct" && strategy != "optimized" {
		return model.ExecuteResult{}, converter.InvalidInput("unknown image strategy %q", strategy)
	}
	data, err := input.Bytes()
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("read image: %v", err)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, fmt.Errorf("decode image: %w", err))
	}
	optimized := strategy == "optimized"
	img := resize(src, opts.Int("width", 0), opts.Int("height", 0), optimized)

	var buf bytes.Buffer
	switch opts.Target {
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if optimized {
			enc.CompressionLevel = png.BestCompression
		}
		err = enc.Encode(&buf, img)
	case "jpeg":
		quality := 90
		if optimized {
			quality = defaultJPEGQuality
		}
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: opts.Int("quality", quality)})
	case "gif":
		o := &gif.Options{NumColors: 256}
		if optimized {
			o.Drawer = draw.FloydSteinberg
		}
		err = gif.Encode(&buf, img, o)
	case "tiff":
		o := &tiff.Options{Compression: tiff.Uncompressed}
		if optimized {
			o = &tiff.Options{Compression: tiff.Deflate, Predictor: true}
		}
		err = tiff.Encode(&buf, img, o)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "webp":
		return encodeWebP(ctx, kit, ws, img, optimized, opts, format)
	default:
		return model.ExecuteResult{}, converter.UnsupportedTarget(input.Format, opts.Target)
	}
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(CodeEngineFailed, fmt.Errorf("encode %s: %w", opts.Target, err))
	}

	out, err := emit(ws, buf.Bytes(), opts)
	if err != nil {
		return model.ExecuteResult{}, err
	}
	b := img.Bounds()
	return model.ExecuteResult{
		Output: out,
		Metadata: map[string]any{
			"sourceFormat": format,
			"width":        b.Dx(),
			"height":       b.Dy(),
			"size":         len(buf.Bytes()),
		},
	}, nil
}

// encodeWebP hands a lossless png to ffmpeg's libwebp encoder.
func encodeWebP(ctx context.Context, kit Kit, ws *converter.Workspace, img image.Image, optimized bool, opts converter.Options, source string) (model.ExecuteResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return model.ExecuteResult{}, converter.Crash(CodeEngineFailed, fmt.Errorf("encode intermediate png: %w", err))
	}
	in, err := ws.WriteFile("intermediate.png", buf.Bytes())
	if err != nil {
		return model.ExecuteResult{}, err
	}
	out := ws.Path("output.webp")

	args := []string{"-c:v", "libwebp"}
	if optimized {
		args = append(args, "-quality", fmt.Sprint(opts.Int("quality", 80)), "-compression_level", "6")
	} else {
		args = append(args, "-lossless", "1")
	}
	if _, err := kit.run(ctx, deps.EngineFFmpeg, ffmpegArgs(in, out, args...), subprocess.Options{}); err != nil {
		return model.ExecuteResult{}, err
	}

	artifact, err := ws.Collect(out, "webp", opts)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}
	b := img.Bounds()
	return model.ExecuteResult{
		Output: artifact,
		Metadata: map[string]any{
			"sourceFormat": source,
			"width":        b.Dx(),
			"height":       b.Dy(),
			"engine":       deps.EngineFFmpeg,
		},
	}, nil
}

// emit returns buffered output, or writes it to the caller's outputPath.
func emit(ws *converter.Workspace, data []byte, opts converter.Options) (model.Artifact, error) {
	if opts.String(converter.OutputPathOption, "") == "" {
		return model.BytesArtifact(data, opts.Target), nil
	}
	path, err := ws.WriteFile("output."+opts.Target, data)
	if err != nil {
		return model.Artifact{}, err
	}
	return ws.Collect(path, opts.Target, opts)
}

// resize scales src to fit width x height. A zero dimension keeps the
// aspect ratio; both zero returns src unchanged.
func resize(src image.Image, width, height int, smooth bool) image.Image {
	b := src.Bounds()
	if (width <= 0 && height <= 0) || b.Dx() == 0 || b.Dy() == 0 {
		return src
	}
	switch {
	case width <= 0:
		width = b.Dx() * height / b.Dy()
	case height <= 0:
		height = b.Dy() * width / b.Dx()
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	var scaler draw.Scaler = draw.ApproxBiLinear
	if smooth {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// flatten composites img onto white; jpeg has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

func imageChecks(_, output model.Artifact, _ string) []model.Issue {
	issues, ok := evaluation.CheckNonEmpty(output, 100)
	if !ok {
		return issues
	}
	return append(issues, checkImageMagic(output)...)
}

func checkImageMagic(output model.Artifact) []model.Issue {
	message := fmt.Sprintf("output does not carry %s magic bytes", output.Format)
	if output.Format == "webp" {
		head := output.Head(12)
		if len(head) < 12 || !bytes.Equal(head[:4], []byte("RIFF")) || !bytes.Equal(head[8:12], []byte("WEBP")) {
			return []model.Issue{evaluation.Error(evaluation.CodeMagicBytesMismatch, message, true)}
		}
		return nil
	}
	prefixes, ok := imageMagic[output.Format]
	if !ok {
		return nil
	}
	return evaluation.CheckPrefix(output, evaluation.CodeMagicBytesMismatch, message, prefixes...)
}

func describeImage(input model.Artifact, _ map[string]any) string {
	data, err := input.Bytes()
	if err != nil {
		return fmt.Sprintf("%s image, unreadable", ext(input.Format, "unknown"))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Sprintf("%s image, %d bytes, header not decodable", ext(input.Format, "unknown"), len(data))
	}
	return fmt.Sprintf("%s image, %dx%d, %d bytes", format, cfg.Width, cfg.Height, len(data))
}
