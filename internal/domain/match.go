package domain

import "fmt"

const replayHostPattern = "http://replay%d.valve.net/%d/%d_%d.%s"

type MatchID uint32

type MatchMetadata struct {
	MatchID      MatchID
	ClusterID    uint32
	MetadataSalt uint32
	ReplaySalt   uint32
	ReplayURL    string
	MetadataURL  string
}

// WithLocators fills ReplayURL and MetadataURL from the cluster and salts.
func (m MatchMetadata) WithLocators(appID uint32) MatchMetadata {
	m.ReplayURL = fmt.Sprintf(replayHostPattern, m.ClusterID, appID, m.MatchID, m.ReplaySalt, "dem.bz2")
	m.MetadataURL = fmt.Sprintf(replayHostPattern, m.ClusterID, appID, m.MatchID, m.MetadataSalt, "meta.bz2")
	return m
}

type MatchSummary struct {
	MatchID     MatchID
	StartTime   uint32
	GameMode    uint32
	DurationS   uint32
	WinningTeam uint32
}

type MatchHistory struct {
	Matches    []MatchSummary
	NextCursor uint32
}

type Welcome struct {
	Version       uint32
	CountryCode   string
	GCWelcomeTime uint32
}

type DevPlaytestStatus struct {
	Status uint32
}
