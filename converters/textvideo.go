package converters

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/internal/textenc"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

// Section limits for narrated slides.
const (
	DefaultMaxSections = 30
	sectionTarget      = 200
	// wordsPerSecond estimates narration length when ffprobe is unavailable.
	wordsPerSecond = 2.5
)

// Title card geometry. Text is drawn on a small canvas and scaled up.
const (
	cardWidth   = 1280
	cardHeight  = 720
	cardScale   = 4
	cardColumns = 40
)

var markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+)$`)

// Section is one narrated slide.
type Section struct {
	Title string
	Body  string
}

// Narration returns the text read aloud for the section.
func (s Section) Narration() string {
	if s.Body == "" {
		return s.Title
	}
	if s.Title == "" {
		return s.Body
	}
	return s.Title + ". " + s.Body
}

// TextVideo narrates text as a slideshow video.
func TextVideo(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "text-to-video",
			Name:        "Text to video",
			Description: "Narrates text with TTS over generated title cards",
			Category:    "text document",
			From:        []string{"txt", "md"},
			To:          []string{"mp4"},
			Strategies: []model.Strategy{
				{ID: "narrated-slides", Description: "One title card and TTS narration per section", When: "any prose or outline",
					Engine: "tts+ffmpeg", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityMedium},
				{ID: "animated", Description: "Animated kinetic typography", When: "short punchy scripts",
					Engine: "tts+ffmpeg", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityHigh, Stub: true},
				{ID: "presenter", Description: "Virtual presenter", When: "talks and lessons",
					Engine: "tts+avatar", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityHigh, Stub: true},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			switch strategy {
			case "narrated-slides":
				return narrate(ctx, kit, ws, input, opts)
			case "animated", "presenter":
				return model.ExecuteResult{}, converter.NotImplemented(strategy)
			default:
				return model.ExecuteResult{}, converter.InvalidInput("unknown text-to-video strategy %q", strategy)
			}
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, _ := evaluation.CheckNonEmpty(output, 1024)
			return issues
		},
		Describe: func(input model.Artifact, _ map[string]any) string {
			data, _ := input.Bytes()
			return fmt.Sprintf("%s text, %d words", ext(input.Format, "plain"), len(strings.Fields(string(data))))
		},
	}
}

func narrate(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, opts converter.Options) (model.ExecuteResult, error) {
	data, err := input.Bytes()
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("read text: %v", err)
	}
	text, _, err := textenc.ToUTF8(data, "text/plain")
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("decode text: %v", err)
	}
	sections := SplitSections(string(text), opts.Int("maxSections", DefaultMaxSections))
	if len(sections) == 0 {
		return model.ExecuteResult{}, converter.InvalidInput("text is empty")
	}

	speech := llm.SpeechOptions{
		Voice:  opts.String("voice", "alloy"),
		Speed:  opts.Float("speed", 1.0),
		Format: "mp3",
		Model:  opts.String("ttsModel", ""),
	}

	var (
		list  strings.Builder
		total float64
	)
	for i, s := range sections {
		audio, err := kit.LLM.TTS(ctx, s.Narration(), speech)
		if err != nil {
			return model.ExecuteResult{}, aiError("tts", err)
		}
		audioPath, err := ws.WriteFile(fmt.Sprintf("narration_%02d.mp3", i), audio)
		if err != nil {
			return model.ExecuteResult{}, err
		}

		card, err := TitleCard(s.Title, i+1, len(sections))
		if err != nil {
			return model.ExecuteResult{}, converter.Crash(CodeEngineFailed, err)
		}
		cardPath, err := ws.WriteFile(fmt.Sprintf("card_%02d.png", i), card)
		if err != nil {
			return model.ExecuteResult{}, err
		}

		if probe, err := kit.probe(ctx, audioPath); err == nil && probe.DurationSeconds() > 0 {
			total += probe.DurationSeconds()
		} else {
			total += float64(len(strings.Fields(s.Narration()))) / wordsPerSecond
		}

		segment := ws.Path(fmt.Sprintf("segment_%02d.mp4", i))
		args := []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-loop", "1", "-i", cardPath,
			"-i", audioPath,
			"-c:v", "libx264", "-tune", "stillimage", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			"-shortest", segment,
		}
		if _, err := kit.run(ctx, deps.EngineFFmpeg, args, subprocess.Options{}); err != nil {
			return model.ExecuteResult{}, err
		}
		fmt.Fprintf(&list, "file %s\n", concatQuote(segment))
	}

	listPath, err := ws.WriteFile("segments.txt", []byte(list.String()))
	if err != nil {
		return model.ExecuteResult{}, err
	}
	out := ws.Path("output.mp4")
	concat := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-movflags", "+faststart", out}
	if _, err := kit.run(ctx, deps.EngineFFmpeg, concat, subprocess.Options{}); err != nil {
		return model.ExecuteResult{}, err
	}

	artifact, err := ws.Collect(out, "mp4", opts)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}
	return model.ExecuteResult{
		Output: artifact,
		Metadata: map[string]any{
			"sections":        len(sections),
			"durationSeconds": total,
			"voice":           speech.Voice,
		},
	}, nil
}

// SplitSections splits text at Markdown headings, or groups paragraphs to
// roughly 200 characters when there are none. Sections beyond limit are
// folded into the last one.
func SplitSections(text string, limit int) []Section {
	if limit <= 0 {
		limit = DefaultMaxSections
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sections []Section
	if hasHeading(text) {
		sections = splitByHeadings(text)
	} else {
		sections = groupParagraphs(text)
	}

	if len(sections) > limit {
		last := sections[limit-1]
		for _, s := range sections[limit:] {
			last.Body = strings.TrimSpace(last.Body + "\n\n" + s.Narration())
		}
		sections = append(sections[:limit-1], last)
	}
	return sections
}

func hasHeading(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if markdownHeading.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func splitByHeadings(text string) []Section {
	var (
		sections []Section
		cur      *Section
		body     []string
	)
	flush := func() {
		if cur == nil {
			if b := strings.TrimSpace(strings.Join(body, "\n")); b != "" {
				sections = append(sections, Section{Body: b})
			}
		} else {
			cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *cur)
		}
		body = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if m := markdownHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			cur = &Section{Title: strings.TrimSpace(m[1])}
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

func groupParagraphs(text string) []Section {
	var (
		sections []Section
		group    []string
		size     int
	)
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		group = append(group, para)
		size += len(para)
		if size >= sectionTarget {
			sections = append(sections, paragraphSection(group))
			group, size = nil, 0
		}
	}
	if len(group) > 0 {
		sections = append(sections, paragraphSection(group))
	}
	return sections
}

// paragraphSection titles a group with the first sentence of its first paragraph.
func paragraphSection(group []string) Section {
	body := strings.Join(group, " ")
	title := group[0]
	if i := strings.IndexAny(title, ".!?"); i > 0 {
		title = title[:i]
	}
	if r := []rune(title); len(r) > 60 {
		title = string(r[:57]) + "..."
	}
	return Section{Title: title, Body: body}
}

// TitleCard renders a PNG title card for section n of total.
func TitleCard(title string, n, total int) ([]byte, error) {
	small := image.NewRGBA(image.Rect(0, 0, cardWidth/cardScale, cardHeight/cardScale))
	draw.Draw(small, small.Bounds(), image.NewUniform(color.RGBA{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff}), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: small, Src: image.White, Face: face}
	lines := wrap(title, cardColumns)
	lineHeight := face.Metrics().Height.Ceil() + 2
	y := (small.Bounds().Dy()-len(lines)*lineHeight)/2 + face.Metrics().Ascent.Ceil()
	for _, line := range lines {
		width := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((small.Bounds().Dx()-width)/2, y)
		d.DrawString(line)
		y += lineHeight
	}

	footer := fmt.Sprintf("%d / %d", n, total)
	d.Src = image.NewUniform(color.RGBA{R: 0x94, G: 0xa3, B: 0xb8, A: 0xff})
	d.Dot = fixed.P(small.Bounds().Dx()-d.MeasureString(footer).Ceil()-6, small.Bounds().Dy()-6)
	d.DrawString(footer)

	card := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	draw.NearestNeighbor.Scale(card, card.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, card); err != nil {
		return nil, fmt.Errorf("encode title card: %w", err)
	}
	return buf.Bytes(), nil
}

// wrap breaks text into lines of at most width runes, at most five lines.
func wrap(text string, width int) []string {
	var (
		lines []string
		line  string
	)
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len([]rune(line))+1+len([]rune(word)) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	if len(lines) > 5 {
		lines = append(lines[:4], lines[4]+"...")
	}
	return lines
}

// concatQuote single-quotes a path for an ffmpeg concat list. Embedded
// quotes close the string, add an escaped quote and reopen it.
func concatQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
