package campaign

import (
	"sort"
	"time"
)

// Config describes one campaign to allocate. Configs are immutable inputs
// sourced from the configuration file and processed in SortKey order.
type Config struct {
	SortKey         int       `yaml:"sortKey"`
	Brand           string    `yaml:"brand" validate:"required"`
	Name            string    `yaml:"name" validate:"required"`
	Domain          string    `yaml:"domain" validate:"required"`
	Mode            string    `yaml:"mode"`
	PrimaryListID   string    `yaml:"primaryListId" validate:"required"`
	SecondaryListID string    `yaml:"secondaryListId"`
	SendListID      string    `yaml:"sendListId"`
	TargetCount     int       `yaml:"targetCount" validate:"gt=0"`
	EffectiveDate   time.Time `yaml:"-"`
	BrandProperty   string    `yaml:"brandProperty" validate:"required"`
}

// SortConfigs orders configs by ascending sort key, preserving the
// configured order of equal keys.
func SortConfigs(configs []Config) {
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].SortKey < configs[j].SortKey
	})
}

// FilterConfigs keeps configs matching the named mode (an empty mode
// matches everything) whose effective date falls on or after the start of
// the given day.
func FilterConfigs(configs []Config, mode string, day time.Time) []Config {
	d := day.UTC()
	cutoff := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	var result []Config
	for _, c := range configs {
		if mode != "" && c.Mode != mode {
			continue
		}
		if c.EffectiveDate.Before(cutoff) {
			continue
		}
		result = append(result, c)
	}
	return result
}

// UsedSet tracks contact identifiers already selected during one run so no
// contact is booked into two campaigns. Insert-only; never persisted.
type UsedSet struct {
	members map[string]struct{}
}

// NewUsedSet returns an empty UsedSet.
func NewUsedSet() *UsedSet {
	return &UsedSet{members: make(map[string]struct{})}
}

func (s *UsedSet) Has(id string) bool {
	_, ok := s.members[id]
	return ok
}

func (s *UsedSet) Add(id string) {
	s.members[id] = struct{}{}
}

func (s *UsedSet) Len() int {
	return len(s.members)
}

// FilterNew returns the identifiers not yet in the set, preserving order.
func (s *UsedSet) FilterNew(ids []string) []string {
	var result []string
	for _, id := range ids {
		if !s.Has(id) {
			result = append(result, id)
		}
	}
	return result
}
