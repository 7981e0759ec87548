package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"spinevision-backend/internal/engine"
)

// ErrRender indicates document assembly could not complete. It is fatal
// to the pipeline run: a submission without a report fails outright.
var ErrRender = errors.New("report rendering failed")

// Metadata carries caller-supplied context rendered into the report.
type Metadata struct {
	DoctorName string
	PatientID  string
	ResultID   string
}

// Disclaimer is rendered verbatim in every report. Compliance requires
// it never be shortened or conditionally omitted.
const Disclaimer = "IMPORTANT DISCLAIMER: This report is generated by an AI-assisted diagnostic tool " +
	"and is intended for clinical decision support only. It should not be used as the sole " +
	"basis for diagnosis or treatment. All findings must be reviewed and confirmed by a " +
	"qualified medical professional. The AI model's predictions are probabilistic in nature " +
	"and may not capture all pathological conditions. Clinical correlation is mandatory."

// Renderer produces PDF diagnostic reports from analysis results.
type Renderer struct{}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

type rgb struct{ r, g, b int }

var (
	colorGreen  = rgb{72, 187, 120}
	colorRed    = rgb{229, 62, 62}
	colorOrange = rgb{237, 137, 54}
	colorBlue   = rgb{66, 153, 225}
	colorYellow = rgb{236, 201, 75}
	colorSlate  = rgb{45, 55, 72}
	colorGray   = rgb{113, 128, 150}
)

// Render assembles the PDF report. Section order is fixed; sections with
// empty inputs are omitted, except the footer disclaimer which always
// renders. heatmapPNG may be nil, in which case the heatmap section is
// skipped silently.
func (r *Renderer) Render(result engine.Result, heatmapPNG []byte, meta Metadata) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(19, 19, 19)
	pdf.AddPage()

	r.header(pdf, meta)
	r.classification(pdf, result)
	r.findings(pdf, result.Findings)
	r.heatmap(pdf, heatmapPNG)
	r.recommendations(pdf, result.Overall)
	r.footer(pdf, result, meta)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) header(pdf *fpdf.Fpdf, meta Metadata) {
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(26, 54, 93)
	pdf.CellFormat(0, 12, "SPINEVISION-AI", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(74, 85, 104)
	pdf.CellFormat(0, 8, "AI-Assisted Spine Disease Detection Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetDrawColor(49, 130, 206)
	pdf.SetLineWidth(0.6)
	left, _, right, _ := pdf.GetMargins()
	w, _ := pdf.GetPageSize()
	pdf.Line(left, pdf.GetY(), w-right, pdf.GetY())
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	pdf.CellFormat(0, 6, "Report Generated: "+time.Now().Format("January 2, 2006 at 15:04"), "", 1, "L", false, 0, "")
	if meta.DoctorName != "" {
		pdf.CellFormat(0, 6, "Requesting Physician: "+meta.DoctorName, "", 1, "L", false, 0, "")
	}
	if meta.PatientID != "" {
		pdf.CellFormat(0, 6, "Patient ID: "+meta.PatientID, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (r *Renderer) classification(pdf *fpdf.Fpdf, result engine.Result) {
	r.sectionHeader(pdf, "Overall Classification")

	c := classificationColor(result.Overall)
	pdf.SetFillColor(c.r, c.g, c.b)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, result.Overall, "", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 8, fmt.Sprintf("Confidence: %.0f%%", result.ConfidenceScore*100), "", 1, "C", true, 0, "")
	pdf.Ln(6)
}

func (r *Renderer) findings(pdf *fpdf.Fpdf, findings []engine.Finding) {
	r.sectionHeader(pdf, "Detected Conditions")

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
		pdf.CellFormat(0, 7, "No significant abnormalities detected.", "", 1, "L", false, 0, "")
		pdf.Ln(4)
		return
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(237, 242, 247)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	pdf.SetDrawColor(226, 232, 240)
	pdf.CellFormat(90, 9, "Condition", "1", 0, "L", true, 0, "")
	pdf.CellFormat(44, 9, "Probability", "1", 0, "C", true, 0, "")
	pdf.CellFormat(44, 9, "Severity", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, f := range findings {
		severity, c := severityTier(f.Probability)
		pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
		pdf.CellFormat(90, 9, f.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(44, 9, fmt.Sprintf("%.0f%%", f.Probability*100), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(c.r, c.g, c.b)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(44, 9, severity, "1", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}
	pdf.Ln(4)

	var significant []engine.Finding
	for _, f := range findings {
		if f.Probability >= 0.5 {
			significant = append(significant, f)
		}
	}
	if len(significant) == 0 {
		return
	}

	r.sectionHeader(pdf, "Finding Descriptions")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	for _, f := range significant {
		pdf.MultiCell(0, 6, fmt.Sprintf("%s: %s", f.Label, f.Description), "", "L", false)
		pdf.Ln(1)
	}
	pdf.Ln(3)
}

func (r *Renderer) heatmap(pdf *fpdf.Fpdf, heatmapPNG []byte) {
	if len(heatmapPNG) == 0 {
		return
	}
	// A malformed image must not poison the document; skip the section
	// instead.
	if _, err := png.Decode(bytes.NewReader(heatmapPNG)); err != nil {
		return
	}

	r.sectionHeader(pdf, "Region of Interest Visualization")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	pdf.MultiCell(0, 6, "The highlighted regions indicate areas where the AI model detected potential "+
		"abnormalities. Warmer colors (red/orange) indicate higher attention from the model.", "", "L", false)
	pdf.Ln(3)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("heatmap", opts, bytes.NewReader(heatmapPNG))
	pdf.ImageOptions("heatmap", pdf.GetX(), pdf.GetY(), 100, 100, true, opts, 0, "")
	pdf.Ln(6)
}

func (r *Renderer) recommendations(pdf *fpdf.Fpdf, classification string) {
	r.sectionHeader(pdf, "Recommendations")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	for i, rec := range Recommendations(classification) {
		pdf.MultiCell(0, 6, fmt.Sprintf("%d. %s", i+1, rec), "", "L", false)
		pdf.Ln(1)
	}
}

func (r *Renderer) footer(pdf *fpdf.Fpdf, result engine.Result, meta Metadata) {
	pdf.Ln(8)
	pdf.SetDrawColor(203, 213, 224)
	pdf.SetLineWidth(0.3)
	left, _, right, _ := pdf.GetMargins()
	w, _ := pdf.GetPageSize()
	pdf.Line(left, pdf.GetY(), w-right, pdf.GetY())
	pdf.Ln(4)

	resultID := meta.ResultID
	if resultID == "" {
		resultID = "N/A"
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(colorGray.r, colorGray.g, colorGray.b)
	pdf.CellFormat(0, 5, fmt.Sprintf("Model Version: %s | Analysis ID: %s", result.ModelVersion, resultID), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, Disclaimer, "", "C", false)
}

func (r *Renderer) sectionHeader(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(colorSlate.r, colorSlate.g, colorSlate.b)
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func classificationColor(classification string) rgb {
	switch {
	case contains(classification, "Normal"):
		return colorGreen
	case contains(classification, "High"):
		return colorRed
	case contains(classification, "Moderate"), contains(classification, "Possibly"):
		return colorOrange
	default:
		return colorBlue
	}
}

func severityTier(probability float64) (string, rgb) {
	switch {
	case probability >= 0.7:
		return "High", colorRed
	case probability >= 0.5:
		return "Moderate", colorOrange
	case probability >= 0.3:
		return "Low", colorYellow
	default:
		return "Very Low", colorGreen
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
