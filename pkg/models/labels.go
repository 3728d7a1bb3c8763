package models

// DiagnosisCategory is a Bethesda System cervical cytology category.
type DiagnosisCategory string

const (
	CategoryNILM           DiagnosisCategory = "nilm"           // Negative for intraepithelial lesion or malignancy
	CategoryASCUS          DiagnosisCategory = "asc_us"         // Atypical squamous cells of undetermined significance
	CategoryASCH           DiagnosisCategory = "asc_h"          // Atypical squamous cells, cannot exclude HSIL
	CategoryLSIL           DiagnosisCategory = "lsil"           // Low-grade squamous intraepithelial lesion
	CategoryHSIL           DiagnosisCategory = "hsil"           // High-grade squamous intraepithelial lesion
	CategorySCC            DiagnosisCategory = "scc"            // Squamous cell carcinoma
	CategoryAGC            DiagnosisCategory = "agc"            // Atypical glandular cells
	CategoryAdenocarcinoma DiagnosisCategory = "adenocarcinoma"
	CategoryUnsatisfactory DiagnosisCategory = "unsatisfactory"
)

// DiagnosisCategories lists every valid category.
var DiagnosisCategories = []DiagnosisCategory{
	CategoryNILM,
	CategoryASCUS,
	CategoryASCH,
	CategoryLSIL,
	CategoryHSIL,
	CategorySCC,
	CategoryAGC,
	CategoryAdenocarcinoma,
	CategoryUnsatisfactory,
}

// severityRank orders categories from least to most severe. Primary-label
// ties are broken toward the higher rank: a triage system defaults to the
// conservative (more severe) reading.
var severityRank = map[DiagnosisCategory]int{
	CategoryNILM:           0,
	CategoryUnsatisfactory: 1,
	CategoryASCUS:          2,
	CategoryLSIL:           3,
	CategoryASCH:           4,
	CategoryAGC:            5,
	CategoryHSIL:           6,
	CategorySCC:            7,
	CategoryAdenocarcinoma: 8,
}

// IsValid reports whether the category is part of the fixed label set.
func (c DiagnosisCategory) IsValid() bool {
	_, ok := severityRank[c]
	return ok
}

// SeverityRank returns the category's position in the fixed clinical-severity
// ordering. Unknown categories rank below every known one.
func (c DiagnosisCategory) SeverityRank() int {
	if r, ok := severityRank[c]; ok {
		return r
	}
	return -1
}

// MoreSevereThan reports whether c outranks other in clinical severity.
func (c DiagnosisCategory) MoreSevereThan(other DiagnosisCategory) bool {
	return c.SeverityRank() > other.SeverityRank()
}
