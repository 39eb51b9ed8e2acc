package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/aaronvogel/hass-timezone-updater/internal/adapters/geojson"
	"github.com/aaronvogel/hass-timezone-updater/internal/pkg/config"
)

// Standalone dataset downloader. Fetches the timezone boundary archive,
// extracts the region slice configured in dataset.region and verifies the
// result parses, without starting the tracker.
func main() {
	verify := flag.Bool("verify", true, "parse the downloaded file after extraction")
	flag.Parse()

	cfg, err := config.Load("timezone-tracker-fetch")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Dataset.URL == "" {
		log.Fatal("dataset.url is not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	log.Printf("downloading %s", cfg.Dataset.URL)
	start := time.Now()

	fetcher := geojson.NewFetcher(cfg.Dataset.URL, cfg.Dataset.Path, cfg.Dataset.Region)
	path, err := fetcher.Fetch(ctx)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	log.Printf("wrote %s (region %s) in %s", path, cfg.Dataset.Region, time.Since(start).Round(time.Second))

	if !*verify {
		return
	}

	loader := geojson.NewLoader(path, cfg.Dataset.Region)
	records, source, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}

	zones := map[string]bool{}
	for _, r := range records {
		zones[r.ZoneID] = true
	}
	log.Printf("verified %s: %d boundary records, %d zones", source, len(records), len(zones))
}
