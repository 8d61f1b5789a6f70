package model

import (
	"time"
)

// VersionTimeLayout is the Go time layout equivalent to the
// "%Y_%m_%d-%H_%M_%S" version directory name format original_source uses.
const VersionTimeLayout = "2006_01_02-15_04_05"

// Version is one backup snapshot inside a source's destination subdirectory.
// Names within a BackupContext are unique; ordering by name
// equals ordering by Date.
type Version struct {
	Name string
	Path PathRef
	Date time.Time
}

// ParseVersionName parses a directory name into its Date, returning ok=false
// if the name does not match the version format (: such children
// are silently skipped during enumeration).
func ParseVersionName(name string) (t time.Time, ok bool) {
	parsed, err := time.ParseInLocation(VersionTimeLayout, name, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// FormatVersionName formats t using the version directory name format.
func FormatVersionName(t time.Time) string {
	return t.Format(VersionTimeLayout)
}

// ByDate sorts Versions ascending by Date (equivalently, by Name).
type ByDate []Version

func (v ByDate) Len() int           { return len(v) }
func (v ByDate) Less(i, j int) bool { return v[i].Date.Before(v[j].Date) }
func (v ByDate) Swap(i, j int)      { v[i], v[j] = v[j], v[i] }
