package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"carbon-scribe/restoration-portal/internal/projects"
)

// CertificateOptions configures the restoration certificate.
type CertificateOptions struct {
	Title         string
	Issuer        string
	WalletAddress string
	GeneratedAt   time.Time
}

// DefaultCertificateOptions returns default certificate options
func DefaultCertificateOptions() CertificateOptions {
	return CertificateOptions{
		Title:  "Proof of Restoration",
		Issuer: "Blue Carbon Restoration Portal",
	}
}

// WriteCertificate renders a one-page certificate for a completed project.
func WriteCertificate(w io.Writer, p projects.Project, opts CertificateOptions) error {
	if p.Analysis == nil {
		return fmt.Errorf("project %s has no analysis to certify", p.ID)
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now().UTC()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(opts.Title, true)
	pdf.SetAuthor(opts.Issuer, true)
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFillColor(46, 125, 50)
	pdf.Rect(0, 0, 210, 18, "F")

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(46, 125, 50)
	pdf.CellFormat(0, 14, opts.Title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 7, opts.Issuer, "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetTextColor(0, 0, 0)
	a := p.Analysis
	rows := [][2]string{
		{"Project", p.Name},
		{"Project ID", p.ID},
		{"After image", a.AfterImageName},
		{"Vegetation detected", yesNo(a.HasVegetation)},
		{"Carbon restored", fmt.Sprintf("%d CFT", a.CarbonRestored)},
		{"Biomass detected", a.BiomassDetected.StringFixed(1) + " t"},
		{"Confidence", a.Confidence.StringFixed(1) + " %"},
		{"Analyzed at", a.Timestamp.UTC().Format(time.RFC1123)},
	}
	if p.CarbonFootprint != nil {
		rows = append(rows, [2]string{"Carbon footprint", p.CarbonFootprint.StringFixed(2) + " tCO2e"})
	}
	rows = append(rows,
		[2]string{"IPFS CID", orDash(p.IPFSCID)},
		[2]string{"NFT token", orDash(p.NFTTokenID)},
		[2]string{"NFT transaction", orDash(p.NFTTxHash)},
		[2]string{"CFT transaction", orDash(p.CFTTxHash)},
	)
	if opts.WalletAddress != "" {
		rows = append(rows, [2]string{"Community wallet", opts.WalletAddress})
	}

	for i, row := range rows {
		fill := i%2 == 0
		pdf.SetFillColor(242, 242, 242)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 8, row[0], "", 0, "L", fill, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", fill, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated "+opts.GeneratedAt.Format("2006-01-02 15:04 MST"), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render certificate: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
