// Package profile extracts Adventurer Profile fields from a rendered page.
//
// The page markup is not stable, so the extractor keys on visible text:
// the "Adventurer Profile" banner followed by a region code and the family
// name, and section headings ("Community Activities", "Life",
// "Created Characters") followed by list items. Headings are compared
// with Unicode case folding.
//
// Field keys:
//
//	source_url                 requested URL
//	region                     region code, e.g. "EU"
//	family_name                family name (required)
//	community.<label>          one per community activity
//	life                       life skill entries joined by "; "
//	characters.count           number of created characters
//	character.<n>.name         1-based
//	character.<n>.class
//	character.<n>.level
//	character.<n>.main         "true" for the main character
package profile
