// Package export renders projects as CSV, Excel and PDF documents.
package export

import (
	"strconv"

	"carbon-scribe/restoration-portal/internal/projects"
)

// ProjectColumns is the column order shared by the tabular exports.
var ProjectColumns = []string{
	"ID", "Name", "Status", "After Image", "Has Vegetation", "Carbon Restored (CFT)",
	"Biomass (t)", "Confidence (%)", "Carbon Footprint (tCO2e)", "CFT Amount",
	"IPFS CID", "NFT Token ID", "NFT Tx Hash", "CFT Tx Hash", "Created At",
}

// projectRow flattens p into ProjectColumns order.
func projectRow(p projects.Project) []string {
	var afterImage, hasVeg, carbon, biomass, confidence, footprint, cft string
	if p.AfterImage != nil {
		afterImage = p.AfterImage.Name
	}
	if a := p.Analysis; a != nil {
		hasVeg = strconv.FormatBool(a.HasVegetation)
		carbon = strconv.FormatInt(a.CarbonRestored, 10)
		biomass = a.BiomassDetected.StringFixed(1)
		confidence = a.Confidence.StringFixed(1)
	}
	if p.CarbonFootprint != nil {
		footprint = p.CarbonFootprint.StringFixed(2)
	}
	if p.CFTAmount != nil {
		cft = strconv.FormatInt(*p.CFTAmount, 10)
	}
	return []string{
		p.ID, p.Name, p.Status, afterImage, hasVeg, carbon,
		biomass, confidence, footprint, cft,
		p.IPFSCID, p.NFTTokenID, p.NFTTxHash, p.CFTTxHash, p.CreatedAt,
	}
}
