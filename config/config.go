// Package config loads the crank YAML configuration. Values may reference
// environment variables with ${VAR} placeholders, which keeps API keys out
// of the file itself.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/config"

	"github.com/homemade/crank/campaign"
)

// effectiveDateLayout is the date-only format campaign entries use.
const effectiveDateLayout = "2006-01-02"

type Config struct {
	API       APISettings
	Store     StoreSettings
	Pacing    PacingSettings
	Clone     CloneSettings
	Campaigns []campaign.Config
}

type APISettings struct {
	Endpoint string
	Key      string
}

type StoreSettings struct {
	Dir string
}

// PacingSettings are the timing knobs. Unset values fall back to the
// package defaults of the pipeline they feed.
type PacingSettings struct {
	PageSize       int
	FetchRetries   int
	PageInterval   time.Duration
	ChunkInterval  time.Duration
	UpdateInterval time.Duration
	CampaignDelay  time.Duration
}

type CloneSettings struct {
	Strategy        string
	StartHour       int
	StartMinute     int
	IntervalMinutes int
	Properties      []string
	IncludeListID   string
	ExcludeListID   string
}

// campaignYAML is the on-disk shape of a campaign entry. The effective
// date is a plain date string and is parsed during Load.
type campaignYAML struct {
	SortKey         int    `yaml:"sortKey"`
	Brand           string `yaml:"brand"`
	Name            string `yaml:"name"`
	Domain          string `yaml:"domain"`
	Mode            string `yaml:"mode"`
	PrimaryListID   string `yaml:"primaryListId"`
	SecondaryListID string `yaml:"secondaryListId"`
	SendListID      string `yaml:"sendListId"`
	TargetCount     int    `yaml:"targetCount"`
	EffectiveDate   string `yaml:"effectiveDate"`
	BrandProperty   string `yaml:"brandProperty"`
}

// pacingYAML carries durations as strings ("300ms", "3m") so the file
// format matches time.ParseDuration.
type pacingYAML struct {
	PageSize       int    `yaml:"pageSize"`
	FetchRetries   int    `yaml:"fetchRetries"`
	PageInterval   string `yaml:"pageInterval"`
	ChunkInterval  string `yaml:"chunkInterval"`
	UpdateInterval string `yaml:"updateInterval"`
	CampaignDelay  string `yaml:"campaignDelay"`
}

// LoadFile loads configuration from a YAML file.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads YAML configuration from the given sources, later sources
// overriding earlier ones. ${VAR} placeholders are expanded from the
// environment.
func Load(sources ...io.Reader) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(os.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}

	key := "api"
	if err = yaml.Get(key).Populate(&result.API); err != nil {
		return result, readError(key, err)
	}
	if result.API.Endpoint == "" || result.API.Key == "" {
		return result, fmt.Errorf("config requires api.endpoint and api.key")
	}

	key = "store"
	if yaml.Get(key).HasValue() {
		if err = yaml.Get(key).Populate(&result.Store); err != nil {
			return result, readError(key, err)
		}
	}
	if result.Store.Dir == "" {
		result.Store.Dir = "crank.db"
	}

	key = "pacing"
	var pacing pacingYAML
	if yaml.Get(key).HasValue() {
		if err = yaml.Get(key).Populate(&pacing); err != nil {
			return result, readError(key, err)
		}
	}
	if result.Pacing, err = buildPacing(pacing); err != nil {
		return result, err
	}

	key = "clone"
	if yaml.Get(key).HasValue() {
		if err = yaml.Get(key).Populate(&result.Clone); err != nil {
			return result, readError(key, err)
		}
	}

	key = "campaigns"
	var entries []campaignYAML
	if yaml.Get(key).HasValue() {
		if err = yaml.Get(key).Populate(&entries); err != nil {
			return result, readError(key, err)
		}
	}
	if result.Campaigns, err = buildCampaigns(entries); err != nil {
		return result, err
	}

	return result, nil
}

func buildPacing(in pacingYAML) (PacingSettings, error) {
	out := PacingSettings{
		PageSize:       in.PageSize,
		FetchRetries:   in.FetchRetries,
		PageInterval:   campaign.DefaultPageInterval,
		ChunkInterval:  campaign.DefaultChunkInterval,
		UpdateInterval: campaign.DefaultUpdateInterval,
		CampaignDelay:  campaign.DefaultInterCampaignDelay,
	}
	if out.PageSize == 0 {
		out.PageSize = campaign.DefaultPageSize
	}
	if out.FetchRetries == 0 {
		out.FetchRetries = campaign.DefaultFetchRetries
	}
	for _, d := range []struct {
		key   string
		value string
		into  *time.Duration
	}{
		{"pageInterval", in.PageInterval, &out.PageInterval},
		{"chunkInterval", in.ChunkInterval, &out.ChunkInterval},
		{"updateInterval", in.UpdateInterval, &out.UpdateInterval},
		{"campaignDelay", in.CampaignDelay, &out.CampaignDelay},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return out, fmt.Errorf("invalid pacing.%s %q: %w", d.key, d.value, err)
		}
		*d.into = parsed
	}
	return out, nil
}

func buildCampaigns(entries []campaignYAML) ([]campaign.Config, error) {
	validate := validator.New()
	configs := make([]campaign.Config, 0, len(entries))
	for i, e := range entries {
		cfg := campaign.Config{
			SortKey:         e.SortKey,
			Brand:           e.Brand,
			Name:            e.Name,
			Domain:          e.Domain,
			Mode:            e.Mode,
			PrimaryListID:   e.PrimaryListID,
			SecondaryListID: e.SecondaryListID,
			SendListID:      e.SendListID,
			TargetCount:     e.TargetCount,
			BrandProperty:   e.BrandProperty,
		}
		if e.EffectiveDate != "" {
			date, err := time.Parse(effectiveDateLayout, e.EffectiveDate)
			if err != nil {
				return nil, fmt.Errorf("campaign %d (%s): invalid effectiveDate %q: %w", i, e.Name, e.EffectiveDate, err)
			}
			cfg.EffectiveDate = date
		}
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("campaign %d (%s): %w", i, e.Name, err)
		}
		configs = append(configs, cfg)
	}
	campaign.SortConfigs(configs)
	return configs, nil
}
