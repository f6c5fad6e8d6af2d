package charts

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"slices"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/wcharczuk/go-chart/v2"
)

// Format is an output image format
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
	FormatJPG Format = "jpg"
)

// SupportedFormats lists the formats encode accepts
var SupportedFormats = []Format{FormatPNG, FormatPDF, FormatJPG}

// Supported reports whether f is one of SupportedFormats
func (f Format) Supported() bool {
	return slices.Contains(SupportedFormats, f)
}

// FormatNames returns SupportedFormats as strings, in order
func FormatNames() []string {
	names := make([]string, len(SupportedFormats))
	for i, f := range SupportedFormats {
		names[i] = string(f)
	}
	return names
}

// ParseFormat normalizes a user supplied format name. Unknown names are
// returned as-is so that the renderer reports them when encoding.
func ParseFormat(s string) Format {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	if f == "jpeg" {
		return FormatJPG
	}
	return f
}

// encode renders ch into the bytes of a file in the given format
func encode(ch chart.Chart, format Format, opts Options) ([]byte, error) {
	if !format.Supported() {
		return nil, fmt.Errorf("unsupported output format %q, want one of %s", format, strings.Join(FormatNames(), ", "))
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("draw chart: %w", err)
	}

	switch format {
	case FormatJPG:
		return encodeJPEG(buf.Bytes(), opts.JPEGQuality)
	case FormatPDF:
		return encodePDF(buf.Bytes(), opts)
	default:
		return buf.Bytes(), nil
	}
}

func encodeJPEG(pngData []byte, quality int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decode chart image: %w", err)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// encodePDF places the chart on a single page of the same physical size
func encodePDF(pngData []byte, opts Options) ([]byte, error) {
	const mmPerInch = 25.4
	w := float64(opts.Width) / opts.DPI * mmPerInch
	h := float64(opts.Height) / opts.DPI * mmPerInch

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	imgOpts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("chart", imgOpts, bytes.NewReader(pngData))
	pdf.ImageOptions("chart", 0, 0, w, h, false, imgOpts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return out.Bytes(), nil
}
