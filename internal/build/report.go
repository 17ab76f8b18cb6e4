package build

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/klauspost/compress/gzip"
	"github.com/wolfeidau/bundlekit/internal/assets"
)

// FileSize is one emitted script or stylesheet.
type FileSize struct {
	// Path relative to the project root
	Path string
	Size int
	Gzip int
}

// Report summarizes a successful build.
type Report struct {
	ID          string
	OutputDir   string
	PublicPath  string
	Files       []FileSize
	PublicFiles int
	Warnings    []string
	Duration    time.Duration
}

func newReport(out *assets.Output, outputRel, publicPath string) (*Report, error) {
	r := &Report{
		ID:         out.ID,
		OutputDir:  outputRel,
		PublicPath: publicPath,
		Warnings:   assets.FormatWarnings(out.Warnings),
		Duration:   out.Duration,
	}

	for name, size := range out.Assets() {
		gz, err := gzipSize(out.Files[name])
		if err != nil {
			return nil, fmt.Errorf("failed to compress %s: %w", name, err)
		}
		r.Files = append(r.Files, FileSize{
			Path: filepath.ToSlash(filepath.Join(outputRel, name)),
			Size: size,
			Gzip: gz,
		})
	}

	// largest first, scripts before styles of the same size
	slices.SortFunc(r.Files, func(a, b FileSize) int {
		if a.Gzip != b.Gzip {
			return b.Gzip - a.Gzip
		}
		return strings.Compare(a.Path, b.Path)
	})

	return r, nil
}

type countingWriter int

func (c *countingWriter) Write(p []byte) (int, error) {
	*c += countingWriter(len(p))
	return len(p), nil
}

func gzipSize(data []byte) (int, error) {
	var n countingWriter
	zw, err := gzip.NewWriterLevel(&n, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(data); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Print writes the summary the way create-react-app reports a build.
func (r *Report) Print(w io.Writer) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, yellow("Compiled with warnings."))
		fmt.Fprintln(w)
		for _, warning := range r.Warnings {
			fmt.Fprint(w, warning)
		}
	} else {
		fmt.Fprintln(w, green("Compiled successfully."))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "File sizes after gzip:")
	fmt.Fprintln(w)

	width := 0
	sizes := make([]string, len(r.Files))
	for i, f := range r.Files {
		sizes[i] = humanize.Bytes(uint64(f.Gzip))
		width = max(width, len(sizes[i]))
	}
	for i, f := range r.Files {
		dir, file := filepath.Split(f.Path)
		fmt.Fprintf(w, "  %-*s  %s%s\n", width, sizes[i], dim(dir), cyan(file))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "The project was built assuming it is hosted at %s.\n", green(r.PublicPath))
	fmt.Fprintf(w, "The %s folder is ready to be deployed.\n", cyan(r.OutputDir))
}
