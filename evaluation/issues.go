package evaluation

import (
	"bytes"
	"fmt"

	"github.com/richinex/transmute/model"
)

// Issue codes shared by several converters.
const (
	CodeOutputEmpty        = "OUTPUT_EMPTY"
	CodeOutputTooSmall     = "OUTPUT_TOO_SMALL"
	CodeMagicBytesMismatch = "MAGIC_BYTES_MISMATCH"
	CodeInvalidPDFHeader   = "INVALID_PDF_HEADER"
	CodeEvaluationFailed   = "EVALUATION_FAILED"
	CodeExecuteThrew       = "EXECUTE_THREW"
)

// Error returns an error-severity issue.
func Error(code, message string, fixable bool) model.Issue {
	return model.Issue{Code: code, Severity: model.SeverityError, Message: message, Fixable: fixable}
}

// Warning returns a warning-severity issue.
func Warning(code, message string, fixable bool) model.Issue {
	return model.Issue{Code: code, Severity: model.SeverityWarning, Message: message, Fixable: fixable}
}

// Info returns an informational issue.
func Info(code, message string) model.Issue {
	return model.Issue{Code: code, Severity: model.SeverityInfo, Message: message}
}

// Suggest sets the strategy the planner should try next.
func Suggest(issue model.Issue, strategy string) model.Issue {
	issue.SuggestedStrategy = strategy
	return issue
}

// CheckNonEmpty reports OUTPUT_EMPTY when the output has no content, and a
// small-output warning below minSize bytes. It returns true when the output
// has content so callers can skip content checks.
func CheckNonEmpty(output model.Artifact, minSize int64) ([]model.Issue, bool) {
	size := output.Size()
	if size == 0 {
		return []model.Issue{Error(CodeOutputEmpty, "conversion produced no output", true)}, false
	}
	if minSize > 0 && size < minSize {
		return []model.Issue{Warning(CodeOutputTooSmall, fmt.Sprintf("output is suspiciously small (%d bytes)", size), true)}, true
	}
	return nil, true
}

// CheckPrefix reports code when output does not start with any of prefixes.
func CheckPrefix(output model.Artifact, code, message string, prefixes ...[]byte) []model.Issue {
	head := output.Head(16)
	for _, prefix := range prefixes {
		if bytes.HasPrefix(head, prefix) {
			return nil
		}
	}
	return []model.Issue{Error(code, message, true)}
}

// PDFMagic is the leading marker of every PDF file.
var PDFMagic = []byte("%PDF")

// CheckPDF requires a %PDF header.
func CheckPDF(output model.Artifact) []model.Issue {
	return CheckPrefix(output, CodeInvalidPDFHeader, "output does not start with %PDF", PDFMagic)
}
