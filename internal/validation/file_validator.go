package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "tschart/internal/errors"
)

// SupportedInputExtensions lists the source file extensions the loader can read
var SupportedInputExtensions = []string{".csv", ".xlsx", ".xls", ".txt"}

// FileValidator provides the file checks shared by the loader and the chart renderer
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateFile checks that a source file exists and is a regular file
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return apperrors.NotFound(path, err)
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return apperrors.ReadFailure(path, fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return apperrors.NotFound(path, fmt.Errorf("%s is a directory, not a file", path))
	}

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateExtension returns the lower-cased extension of path if it is one of
// SupportedInputExtensions
func (v *FileValidator) ValidateExtension(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedInputExtensions {
		if ext == supported {
			return ext, nil
		}
	}
	v.logger.Error("Unsupported file format",
		slog.String("file", path),
		slog.String("extension", ext))
	return "", apperrors.UnsupportedFormat(path, ext)
}

// ValidateInputFile runs ValidateFile and ValidateExtension in that order
func (v *FileValidator) ValidateInputFile(path string) (string, error) {
	if err := v.ValidateFile(path); err != nil {
		return "", err
	}
	return v.ValidateExtension(path)
}

// ValidateOutputDirectory ensures the output directory and its parents exist.
// An existing directory is not an error.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	v.logger.Debug("Output directory validated",
		slog.String("directory", dir))
	return nil
}
