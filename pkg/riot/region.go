// Package riot defines the vocabulary shared by the collector: credentials,
// regions and their platforms, ranked queues, and the payloads returned by
// the Riot API.
package riot

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRegion is returned when a region name is not part of the fixed table.
var ErrUnknownRegion = errors.New("unknown region")

// Region is a routing value for the match endpoints.
type Region string

// Regions served by the match-v5 API.
const (
	RegionAmericas Region = "americas"
	RegionAsia     Region = "asia"
	RegionEurope   Region = "europe"
	RegionSEA      Region = "sea"
)

// Platform is a routing value for the league and summoner endpoints.
type Platform string

// Platforms known to the collector.
const (
	PlatformBR1  Platform = "br1"
	PlatformEUN1 Platform = "eun1"
	PlatformEUW1 Platform = "euw1"
	PlatformJP1  Platform = "jp1"
	PlatformKR   Platform = "kr"
	PlatformLA1  Platform = "la1"
	PlatformLA2  Platform = "la2"
	PlatformNA1  Platform = "na1"
	PlatformOC1  Platform = "oc1"
	PlatformTR1  Platform = "tr1"
	PlatformRU   Platform = "ru"
	PlatformPH2  Platform = "ph2"
	PlatformSG2  Platform = "sg2"
	PlatformTH2  Platform = "th2"
	PlatformTW2  Platform = "tw2"
	PlatformVN2  Platform = "vn2"
)

// regionPlatforms is the process-wide region table. Order matters: discovery
// walks platforms in this order so backlogs are deterministic.
var regionPlatforms = map[Region][]Platform{
	RegionEurope:   {PlatformEUN1, PlatformEUW1, PlatformTR1, PlatformRU},
	RegionAmericas: {PlatformBR1, PlatformLA1, PlatformLA2, PlatformNA1},
	RegionAsia:     {PlatformJP1, PlatformKR},
	RegionSEA:      {PlatformVN2, PlatformTW2, PlatformTH2, PlatformSG2, PlatformOC1, PlatformPH2},
}

// Regions returns every region in a stable order.
func Regions() []Region {
	return []Region{RegionAmericas, RegionAsia, RegionEurope, RegionSEA}
}

// ParseRegion converts a case-insensitive name into a Region.
func ParseRegion(name string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := regionPlatforms[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return r, nil
}

// Platforms returns a copy of the platforms owned by the region.
func (r Region) Platforms() []Platform {
	src := regionPlatforms[r]
	out := make([]Platform, len(src))
	copy(out, src)
	return out
}

// Valid reports whether r is part of the region table.
func (r Region) Valid() bool {
	_, ok := regionPlatforms[r]
	return ok
}

// Region returns the region that owns the platform, or "" if unknown.
func (p Platform) Region() Region {
	for r, platforms := range regionPlatforms {
		for _, candidate := range platforms {
			if candidate == p {
				return r
			}
		}
	}
	return ""
}

// RankedQueue identifies a ranked ladder.
type RankedQueue string

// Ranked queues used for seed discovery.
const (
	QueueRankedSolo RankedQueue = "RANKED_SOLO_5x5"
	QueueRankedFlex RankedQueue = "RANKED_FLEX_SR"
)

// DefaultQueues are the ladders scanned when no queues are configured.
func DefaultQueues() []RankedQueue {
	return []RankedQueue{QueueRankedSolo, QueueRankedFlex}
}
