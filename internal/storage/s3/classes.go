package s3

import (
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/scttfrdmn/cargoship/pkg/aws/config"
)

// S3 storage classes. GLACIER and DEEP_ARCHIVE are named so that
// configuration can reject them: their objects must be restored before
// GetObject succeeds, and a tier reads its image on every operation.
const (
	ClassStandard          = "STANDARD"
	ClassStandardIA        = "STANDARD_IA"
	ClassOneZoneIA         = "ONEZONE_IA"
	ClassReducedRedundancy = "REDUCED_REDUNDANCY"
	ClassGlacierIR         = "GLACIER_IR"
	ClassGlacier           = "GLACIER"
	ClassDeepArchive       = "DEEP_ARCHIVE"
	ClassIntelligent       = "INTELLIGENT_TIERING"
)

var storageClasses = map[string]struct {
	sdk   types.StorageClass
	cargo config.StorageClass
}{
	ClassStandard:          {types.StorageClassStandard, config.StorageClassStandard},
	ClassStandardIA:        {types.StorageClassStandardIa, config.StorageClassStandardIA},
	ClassOneZoneIA:         {types.StorageClassOnezoneIa, config.StorageClassOneZoneIA},
	ClassReducedRedundancy: {types.StorageClassReducedRedundancy, config.StorageClassStandard}, // deprecated class
	ClassGlacierIR:         {types.StorageClassGlacierIr, config.StorageClassGlacier},
	ClassIntelligent:       {types.StorageClassIntelligentTiering, config.StorageClassIntelligentTiering},
}

var archiveClasses = map[string]bool{
	ClassGlacier:     true,
	ClassDeepArchive: true,
}

// ConvertStorageClass maps a configured class to the SDK type. Unknown
// classes map to STANDARD.
func ConvertStorageClass(class string) types.StorageClass {
	if c, ok := storageClasses[class]; ok {
		return c.sdk
	}
	return types.StorageClassStandard
}

// ConvertCargoShipStorageClass maps a configured class to the CargoShip
// type. Classes CargoShip lacks fall back to the closest one it has.
func ConvertCargoShipStorageClass(class string) config.StorageClass {
	if c, ok := storageClasses[class]; ok {
		return c.cargo
	}
	return config.StorageClassStandard
}
