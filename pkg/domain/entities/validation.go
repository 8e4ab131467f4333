package entities

import "time"

// BOMValidation is the stored validation state of an assembly's resolved BOM
type BOMValidation struct {
	Assembly    PartNumber
	Validated   bool
	Checksum    string
	ValidatedAt time.Time
}
