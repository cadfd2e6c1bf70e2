package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"guardian/internal/models"
)

const (
	productTitle = "FTTH Guardian AI"
	imageWidth   = 180.0
	rowHeight    = 8.0
)

type column struct {
	title string
	width float64
	align string
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newDocument(title string, generated time.Time) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(productTitle, true)
	pdf.SetCreationDate(generated)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetTextColor(15, 23, 42)
		pdf.CellFormat(0, 10, d.tr(productTitle), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(71, 85, 105)
		pdf.CellFormat(0, 6, d.tr(title), "", 1, "L", false, 0, "")
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(100, 116, 139)
		pdf.CellFormat(95, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "L", false, 0, "")
		pdf.CellFormat(95, 10, "Generated "+generated.Format("2006-01-02 15:04"), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()
	return d
}

func (d *document) heading(text string) {
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.SetTextColor(15, 23, 42)
	d.pdf.CellFormat(0, 8, d.tr(text), "", 1, "L", false, 0, "")
	d.pdf.Ln(1)
}

func (d *document) table(cols []column, rows [][]string) {
	pdf := d.pdf
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(30, 41, 59)
	pdf.SetTextColor(255, 255, 255)
	for _, c := range cols {
		pdf.CellFormat(c.width, rowHeight, d.tr(c.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(15, 23, 42)
	pdf.SetFillColor(241, 245, 249)
	for i, row := range rows {
		for j, c := range cols {
			text := ""
			if j < len(row) {
				text = d.fit(d.tr(row[j]), c.width-2)
			}
			pdf.CellFormat(c.width, rowHeight, text, "1", 0, c.align, i%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// fit truncates s so it fits in width millimetres at the current font.
func (d *document) fit(s string, width float64) string {
	if d.pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && d.pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

// image embeds a PNG at imageWidth, keeping its aspect ratio.
func (d *document) image(name string, png []byte) error {
	pdf := d.pdf
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register image %s: %w", name, err)
	}
	if info == nil || info.Width() == 0 {
		return fmt.Errorf("image %s has no size", name)
	}
	h := imageWidth * info.Height() / info.Width()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if pdf.GetY()+h > pageH-bottom-10 {
		pdf.AddPage()
	}
	x := (210 - imageWidth) / 2
	pdf.ImageOptions(name, x, pdf.GetY(), imageWidth, h, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + h + 6)
	return nil
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func composeOperational(preds []models.Prediction, generated time.Time) ([]byte, error) {
	d := newDocument("Operational Report: Failure Predictions", generated)
	d.heading(fmt.Sprintf("%d entities at risk", len(preds)))
	cols := []column{
		{title: "Entity", width: 55, align: "L"},
		{title: "Risk", width: 20, align: "C"},
		{title: "Timeframe", width: 25, align: "C"},
		{title: "Probable cause", width: 90, align: "L"},
	}
	rows := make([][]string, len(preds))
	for i, p := range preds {
		rows[i] = []string{p.Entity, strconv.Itoa(p.RiskPercentage) + "%", p.Timeframe, p.Details}
	}
	d.table(cols, rows)
	return d.bytes()
}

type chartImage struct {
	name string
	png  []byte
}

func composeML(m models.ModelMetrics, importance []models.FeatureImportance, charts []chartImage, period string, generated time.Time) ([]byte, error) {
	d := newDocument("ML Model Performance Report", generated)
	d.heading("Model metrics")
	metricRows := [][]string{
		{"Version", m.Version},
		{"Algorithm", m.Algorithm},
		{"Training date", m.TrainingDate.Format("2006-01-02")},
		{"Accuracy", fmt.Sprintf("%.2f%%", m.Accuracy*100)},
		{"F1 score", fmt.Sprintf("%.2f", m.F1Score)},
		{"ROC AUC", fmt.Sprintf("%.2f", m.RocAUC)},
	}
	if period != "" {
		metricRows = append(metricRows, []string{"Period", period})
	}
	d.table([]column{{title: "Metric", width: 80, align: "L"}, {title: "Value", width: 110, align: "L"}}, metricRows)

	for _, c := range charts {
		if err := d.image(c.name, c.png); err != nil {
			return nil, err
		}
	}

	d.pdf.AddPage()
	d.heading("Feature importance")
	rows := make([][]string, len(importance))
	for i, f := range importance {
		rows[i] = []string{f.Feature, strconv.FormatFloat(f.Importance, 'f', 4, 64)}
	}
	d.table([]column{{title: "Feature", width: 130, align: "L"}, {title: "Importance", width: 60, align: "R"}}, rows)
	return d.bytes()
}
