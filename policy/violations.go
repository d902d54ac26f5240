package policy

import "strings"

// ViolationType is a normalized parking violation category.
type ViolationType string

const (
	ViolationExpiredMeter      ViolationType = "expired_meter"
	ViolationStreetCleaning    ViolationType = "street_cleaning"
	ViolationNoParkingZone     ViolationType = "no_parking_zone"
	ViolationTimeLimit         ViolationType = "time_limit_exceeded"
	ViolationLoadingZone       ViolationType = "loading_zone"
	ViolationPermitZone        ViolationType = "residential_permit_zone"
	ViolationNoStanding        ViolationType = "no_standing"
	ViolationCommercialVehicle ViolationType = "commercial_vehicle_restriction"
	ViolationBusStop           ViolationType = "bus_stop"
	ViolationCrosswalk         ViolationType = "crosswalk"
	ViolationFireHydrant       ViolationType = "fire_hydrant"
	ViolationHandicapZone      ViolationType = "handicap_zone"
	ViolationDoubleParking     ViolationType = "double_parking"
	ViolationBlockingIntersect ViolationType = "blocking_intersection"
	ViolationCriminal          ViolationType = "criminal"
	ViolationMovingViolation   ViolationType = "moving_violation"
	ViolationOther             ViolationType = "other"
)

// DefaultCoveredViolations are reimbursable.
var DefaultCoveredViolations = []ViolationType{
	ViolationExpiredMeter,
	ViolationStreetCleaning,
	ViolationNoParkingZone,
	ViolationTimeLimit,
	ViolationLoadingZone,
	ViolationPermitZone,
	ViolationNoStanding,
	ViolationCommercialVehicle,
	ViolationBusStop,
	ViolationCrosswalk,
}

// AbsoluteExclusions are never reimbursable, whatever the plan or cap state.
// Safety violations and anything criminal or moving.
var AbsoluteExclusions = []ViolationType{
	ViolationFireHydrant,
	ViolationHandicapZone,
	ViolationDoubleParking,
	ViolationBlockingIntersect,
	ViolationCriminal,
	ViolationMovingViolation,
}

// violationAliases maps free-text labels from the scanner or form to a type.
var violationAliases = map[string]ViolationType{
	"meter":                 ViolationExpiredMeter,
	"parking_meter":         ViolationExpiredMeter,
	"expired_parking_meter": ViolationExpiredMeter,
	"street_sweeping":       ViolationStreetCleaning,
	"no_parking":            ViolationNoParkingZone,
	"overtime_parking":      ViolationTimeLimit,
	"time_limit":            ViolationTimeLimit,
	"permit_zone":           ViolationPermitZone,
	"residential_permit":    ViolationPermitZone,
	"hydrant":               ViolationFireHydrant,
	"disabled_zone":         ViolationHandicapZone,
	"handicap":              ViolationHandicapZone,
	"handicapped_zone":      ViolationHandicapZone,
	"accessible_parking":    ViolationHandicapZone,
	"double_parked":         ViolationDoubleParking,
	"blocking_the_box":      ViolationBlockingIntersect,
	"moving":                ViolationMovingViolation,
	"speeding":              ViolationMovingViolation,
	"red_light":             ViolationMovingViolation,
}

// NormalizeViolation turns "Fire Hydrant", "fire-hydrant" or "FIRE_HYDRANT"
// into fire_hydrant and resolves known aliases.
func NormalizeViolation(s string) ViolationType {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(key)
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	if v, ok := violationAliases[key]; ok {
		return v
	}
	return ViolationType(key)
}
