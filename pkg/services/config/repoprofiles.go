package config

import (
	"context"
	"fmt"

	"gopkg.in/ini.v1"
)

// RepoProfile carries per-repo overrides of the gating defaults. Nil
// fields mean "use the service-wide value".
type RepoProfile struct {
	P1Threshold      *int
	RateCapacity     *int
	RateRefillPerSec *float64
}

// Registry resolves per-repo override profiles from an ini file whose
// section names are repo fingerprints:
//
//	[github.com/acme/billing]
//	p1_threshold = 3
//	rate_capacity = 5
//	rate_refill_per_sec = 0.5
type Registry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, repo string) (*RepoProfile, error)
}

type profileRegistry struct {
	cfg *ini.File
}

func NewRegistry(path string) (Registry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return &profileRegistry{cfg: cfg}, nil
}

func (pr *profileRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range pr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (pr *profileRegistry) GetProfile(_ context.Context, repo string) (*RepoProfile, error) {
	section, err := pr.cfg.GetSection(repo)
	if err != nil {
		return nil, fmt.Errorf("profile %s not found", repo)
	}

	profile := &RepoProfile{}
	if key, err := section.GetKey("p1_threshold"); err == nil {
		n, err := key.Int()
		if err != nil || n < 0 {
			return nil, fmt.Errorf("profile %s: invalid p1_threshold", repo)
		}
		profile.P1Threshold = &n
	}
	if key, err := section.GetKey("rate_capacity"); err == nil {
		n, err := key.Int()
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("profile %s: invalid rate_capacity", repo)
		}
		profile.RateCapacity = &n
	}
	if key, err := section.GetKey("rate_refill_per_sec"); err == nil {
		f, err := key.Float64()
		if err != nil || f < 0 {
			return nil, fmt.Errorf("profile %s: invalid rate_refill_per_sec", repo)
		}
		profile.RateRefillPerSec = &f
	}
	return profile, nil
}
