package geojson

import (
	"fmt"
	"strings"
)

// Zone identifiers per country, used to build region filters. Entries
// without a trailing slash also match their sub-zones, so "America/Indiana"
// covers "America/Indiana/Knox".
var usZones = []string{
	"America/New_York", "America/Chicago", "America/Denver", "America/Los_Angeles",
	"America/Phoenix", "America/Anchorage", "America/Adak", "America/Honolulu",
	"America/Detroit", "America/Kentucky", "America/Indiana", "America/Menominee",
	"America/North_Dakota", "America/Boise", "America/Juneau", "America/Sitka",
	"America/Metlakatla", "America/Yakutat", "America/Nome", "Pacific/Honolulu",
}

var canadaZones = []string{
	"America/Toronto", "America/Vancouver", "America/Edmonton", "America/Winnipeg",
	"America/Halifax", "America/St_Johns", "America/Regina", "America/Yellowknife",
	"America/Whitehorse", "America/Iqaluit", "America/Moncton", "America/Goose_Bay",
	"America/Glace_Bay", "America/Blanc-Sablon", "America/Cambridge_Bay",
	"America/Inuvik", "America/Dawson", "America/Creston", "America/Fort_Nelson",
	"America/Rankin_Inlet", "America/Resolute", "America/Atikokan", "America/Pangnirtung",
	"America/Thunder_Bay", "America/Nipigon", "America/Rainy_River", "America/Swift_Current",
}

var mexicoZones = []string{
	"America/Mexico_City", "America/Cancun", "America/Tijuana", "America/Hermosillo",
	"America/Mazatlan", "America/Chihuahua", "America/Ojinaga", "America/Matamoros",
	"America/Monterrey", "America/Merida", "America/Bahia_Banderas",
}

// RegionPrefixes returns the zone patterns for a named region filter.
// A nil slice means no filtering. Patterns ending in "/" match as a plain
// prefix; all others match the zone exactly or any of its sub-zones.
func RegionPrefixes(region string) ([]string, error) {
	switch region {
	case "", "all":
		return nil, nil
	case "us":
		return usZones, nil
	case "us_canada":
		return concat(usZones, canadaZones), nil
	case "north_america":
		return concat(usZones, canadaZones, mexicoZones), nil
	case "americas":
		return []string{"America/"}, nil
	case "europe":
		return []string{"Europe/"}, nil
	default:
		return nil, fmt.Errorf("unknown region %q", region)
	}
}

// MatchesRegion reports whether the zone identifier passes the filter
// produced by RegionPrefixes.
func MatchesRegion(zoneID string, prefixes []string) bool {
	if prefixes == nil {
		return true
	}
	for _, p := range prefixes {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(zoneID, p) {
				return true
			}
			continue
		}
		if zoneID == p || strings.HasPrefix(zoneID, p+"/") {
			return true
		}
	}
	return false
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
