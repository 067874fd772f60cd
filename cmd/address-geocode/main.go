package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fractionax_search/internal/address"
	"fractionax_search/internal/maps"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"
)

type result struct {
	Input      string              `json:"input"`
	Matched    bool                `json:"matched"`
	Resolution *address.Resolution `json:"resolution,omitempty"`
	Warning    string              `json:"warning,omitempty"`
}

// placeDetails adapts the maps service to the resolver.
type placeDetails struct {
	svc *maps.Service
}

func (p placeDetails) FetchDetails(ctx context.Context, placeID string) (maps.PlaceDetails, error) {
	return p.svc.PlaceDetails(ctx, placeID)
}

func main() {
	inPath := flag.String("in", "", "file with one address per line (default stdin)")
	strict := flag.Bool("strict", false, "exit non-zero when an address is incomplete")
	flag.Parse()

	cfg, err := config.LoadForMaps()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.NewWithWriter(os.Stderr, logger.LevelFor(cfg.Env))
	log.Info("starting address geocode")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			log.Error("failed to open input", "path", *inPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	var cache maps.Cache
	if cfg.IsCacheEnabled() {
		if rc, err := maps.NewRedisCacheFromURL(cfg.GetRedisURL(), cfg.GetMapsCacheTTL(), log); err != nil {
			log.Warn("maps cache disabled", "error", err)
		} else {
			defer rc.Close()
			cache = rc
		}
	}

	mapsService := maps.NewService(cfg, cache, log)
	resolver := address.NewResolver(placeDetails{svc: mapsService}, log)

	out := json.NewEncoder(os.Stdout)
	incomplete := 0
	total := 0

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		total++

		res := geocode(ctx, mapsService, resolver, log, line)
		if res.Matched && !res.Resolution.Validation.IsValid {
			incomplete++
		}
		if err := out.Encode(res); err != nil {
			log.Error("failed to write result", "error", err)
			os.Exit(1)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("failed to read input", "error", err)
		os.Exit(1)
	}

	log.Info("address geocode finished", "total", total, "incomplete", incomplete)
	if *strict && incomplete > 0 {
		os.Exit(2)
	}
}

func geocode(ctx context.Context, svc *maps.Service, resolver *address.Resolver, log *logger.Logger, line string) result {
	suggestions, err := svc.Autocomplete(ctx, line)
	if err != nil {
		log.Error("autocomplete failed", "input", line, "error", err)
		return result{Input: line, Warning: err.Error()}
	}
	if len(suggestions) == 0 {
		log.Info("no geocode result", "input", line)
		return result{Input: line}
	}

	res := resolver.Resolve(ctx, suggestions[0])
	return result{
		Input:      line,
		Matched:    true,
		Resolution: &res,
		Warning:    res.Warning(),
	}
}
