package converter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/richinex/transmute/model"
)

// OutputPathOption is the option key that asks a converter to leave its
// output at a caller-owned path instead of returning bytes.
const OutputPathOption = "outputPath"

// Materialize returns a file path for input, writing buffered input into the
// workspace under name when it has no path of its own.
func (w *Workspace) Materialize(input model.Artifact, name string) (string, error) {
	if len(input.Data) == 0 && input.Path != "" {
		if _, err := os.Stat(input.Path); err != nil {
			return "", InvalidInput("input file: %v", err)
		}
		return input.Path, nil
	}
	if len(input.Data) == 0 {
		return "", InvalidInput("empty input")
	}
	return w.WriteFile(name, input.Data)
}

// Collect turns a file produced in the workspace into an output artifact.
// With an outputPath option the file is copied out and returned by path;
// otherwise it is read into memory so it survives the workspace release.
func (w *Workspace) Collect(path, format string, opts Options) (model.Artifact, error) {
	if dest := opts.String(OutputPathOption, ""); dest != "" {
		if err := copyFile(path, dest); err != nil {
			return model.Artifact{}, err
		}
		return model.FileArtifact(dest, format), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("collect output: %w", err)
	}
	return model.BytesArtifact(data, format), nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy output: %w", err)
	}
	return out.Close()
}
