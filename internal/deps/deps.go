// Package deps probes for the external engines converters shell out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Requirement defines an external engine a converter relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Alternatives are tried in order when Command is not found.
	Alternatives []string
}

// Status reports the availability of an engine.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	// Path is the resolved binary when Available.
	Path   string
	Detail string
}

// Prober resolves engine binaries and caches each answer for the life of the
// process. An entry is written once and never replaced.
type Prober struct {
	mu       sync.Mutex
	cache    map[string]probe
	lookPath func(string) (string, error)
}

type probe struct {
	path string
	err  error
}

// NewProber creates an empty prober backed by exec.LookPath.
func NewProber() *Prober {
	return &Prober{cache: make(map[string]probe), lookPath: exec.LookPath}
}

// WithLookPath replaces the binary lookup. Call before first use.
func (p *Prober) WithLookPath(fn func(string) (string, error)) *Prober {
	p.lookPath = fn
	return p
}

var (
	defaultOnce   sync.Once
	defaultProber *Prober
)

// Default returns the process-wide prober.
func Default() *Prober {
	defaultOnce.Do(func() { defaultProber = NewProber() })
	return defaultProber
}

// Lookup resolves command to a binary path.
func (p *Prober) Lookup(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command not configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if hit, ok := p.cache[command]; ok {
		return hit.path, hit.err
	}
	path, err := p.lookPath(command)
	if err != nil {
		err = fmt.Errorf("binary %q not found", command)
	}
	p.cache[command] = probe{path: path, err: err}
	return path, err
}

// Resolve returns the first available binary among req.Command and its
// alternatives.
func (p *Prober) Resolve(req Requirement) (string, error) {
	candidates := append([]string{req.Command}, req.Alternatives...)
	var firstErr error
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		path, err := p.Lookup(c)
		if err == nil {
			return path, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("command not configured")
	}
	return "", firstErr
}

// Check evaluates the provided requirements and reports availability.
func (p *Prober) Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		path, err := p.Resolve(req)
		if err != nil {
			status.Detail = err.Error()
		} else {
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Paths names the engine binaries; empty fields use the defaults.
type Paths struct {
	FFmpeg    string
	FFprobe   string
	Chrome    string
	PDFToText string
}

// Engine names used by converters.
const (
	EngineFFmpeg    = "ffmpeg"
	EngineFFprobe   = "ffprobe"
	EngineChrome    = "chromium"
	EnginePDFToText = "pdftotext"
)

var chromeAlternatives = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless_shell"}

// Requirements lists every engine the bundled converters can use.
func (p Paths) Requirements() []Requirement {
	return []Requirement{
		p.Requirement(EngineFFmpeg),
		p.Requirement(EngineFFprobe),
		p.Requirement(EngineChrome),
		p.Requirement(EnginePDFToText),
	}
}

// Requirement returns the requirement for one engine.
func (p Paths) Requirement(engine string) Requirement {
	switch engine {
	case EngineFFmpeg:
		return Requirement{Name: "FFmpeg", Command: or(p.FFmpeg, "ffmpeg"), Description: "audio, video and webp transcoding", Optional: true}
	case EngineFFprobe:
		return Requirement{Name: "FFprobe", Command: or(p.FFprobe, "ffprobe"), Description: "media duration and stream inspection", Optional: true}
	case EngineChrome:
		req := Requirement{Name: "Chromium", Command: p.Chrome, Description: "URL to PDF rendering", Optional: true, Alternatives: chromeAlternatives}
		if req.Command == "" {
			req.Command = chromeAlternatives[0]
			req.Alternatives = chromeAlternatives[1:]
		}
		return req
	case EnginePDFToText:
		return Requirement{Name: "pdftotext", Command: or(p.PDFToText, "pdftotext"), Description: "PDF text extraction", Optional: true}
	default:
		return Requirement{Name: engine, Command: engine}
	}
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
