// Package appconfig loads process configuration from the environment,
// following the same godotenv-then-os.Getenv pattern as the original
// config package, generalized to the full environment-variable surface the
// pipeline needs. Load is called once at startup; the returned *Config is
// treated as immutable for the process lifetime.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full, immutable process configuration.
type Config struct {
	AppName string
	AppEnv  string
	Port    string

	DatabaseURL string

	OddsAPIKey         string
	OddsAPIBaseURL     string
	OddsSportsWhitelist []string
	OddsMarkets        []string
	OddsRegions        string
	BookmakerWhitelist []string

	SharpBooks     []string
	SharpWeight    float64
	StandardWeight float64

	ConsensusMinBooks int
	ConsensusEps      float64

	PickMinEV     float64
	PickMinBooks  int
	PickMaxPerRun int

	BankrollPaper   float64
	KellyMultiplier float64
	KellyMaxCap     float64
	KellyCap        float64

	DeltaHashStrict bool

	EnableScheduler        bool
	SchedIngestIntervalSec int
	SchedPicksIntervalSec  int
	SchedCLVIntervalSec    int
	SchedJitterSec         int
	SchedMaxConcurrent     int
	SchedRequireDB         bool

	SportsAutorun  []string
	MarketsAutorun []string

	MarketsUnlockCLVMin int
	MarketsUnlockMode   string

	PQSVersion string
	PQSEnabled bool

	CLVPriorWindow      int
	CLVMinNForPrior     int

	SportDefaultMinPQS    float64
	SportDefaultMaxPicks  int
	RunMaxPicksTotal      int

	MinBooks             int
	SharpBookMin         int
	MaxPriceDispersion   float64
	MinAgreement         float64
	MinMinutesToStart    float64
	TimeDecayHalfLifeMin float64
	EVFloor              float64

	// Adaptive-dispersion and relaxed-minutes constants. Named explicitly
	// in the config (rather than hardcoded) per the Open Question in
	// SPEC_FULL.md section 4.5: missing sport overrides fall back to the
	// base setting instead of failing at load.
	MaxPriceDispersionBookCount8        float64
	MaxPriceDispersionSharpEV           float64
	MaxPriceDispersionHardCeiling       float64
	MinMinutesToStartRelaxed            float64
	MinMinutesToStartRelaxedMinBooks    int
	MinMinutesToStartRelaxedMaxDispersion float64

	// Sport-specific overrides, keyed by sport_key. Lookup helpers below
	// fall back to the base SportDefault* fields when a sport is absent.
	SportMinPQSOverrides   map[string]float64
	SportMaxPicksOverrides map[string]int

	PQSWeightEV         float64
	PQSWeightAgreement  float64
	PQSWeightDispersion float64
	PQSWeightCoverage   float64
	PQSWeightSharp      float64
	PQSWeightClvPrior   float64
	PQSWeightTime       float64
}

// MinPQSFor returns the sport-specific min-PQS override, or the base
// SportDefaultMinPQS when none is configured for sportKey.
func (c *Config) MinPQSFor(sportKey string) float64 {
	if v, ok := c.SportMinPQSOverrides[sportKey]; ok {
		return v
	}
	return c.SportDefaultMinPQS
}

// MaxPicksFor returns the sport-specific max-picks override, or the base
// SportDefaultMaxPicks when none is configured for sportKey.
func (c *Config) MaxPicksFor(sportKey string) int {
	if v, ok := c.SportMaxPicksOverrides[sportKey]; ok {
		return v
	}
	return c.SportDefaultMaxPicks
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getCSVEnv(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseKVFloatEnv parses "key:value,key:value" into a map, used for
// per-sport overrides like SPORT_MIN_PQS_OVERRIDES.
func parseKVFloatEnv(key string) map[string]float64 {
	out := map[string]float64{}
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = f
	}
	return out
}

func parseKVIntEnv(key string) map[string]int {
	out := map[string]int{}
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) != 2 {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = i
	}
	return out
}

// Load reads a .env file if present (ignored if missing, matching the
// teacher's godotenv.Load() call) and builds the immutable Config from the
// environment, applying the defaults documented in spec.md section 6.
func Load() (*Config, error) {
	_ = godotenv.Load()

	sportMinPQS := parseKVFloatEnv("SPORT_MIN_PQS_OVERRIDES")
	sportMaxPicks := parseKVIntEnv("SPORT_MAX_PICKS_OVERRIDES")
	if _, ok := sportMaxPicks["basketball_ncaab"]; !ok {
		if v := getIntEnv("NCAAB_DEFAULT_MAX_PICKS", 0); v > 0 {
			sportMaxPicks["basketball_ncaab"] = v
		}
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "value-pipeline"),
		AppEnv:  getEnv("APP_ENV", "development"),
		Port:    getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OddsAPIKey:          getEnv("ODDS_API_KEY", ""),
		OddsAPIBaseURL:      getEnv("ODDS_API_BASE_URL", "https://api.the-odds-api.com/v4"),
		OddsSportsWhitelist: getCSVEnv("ODDS_SPORTS_WHITELIST", nil),
		OddsMarkets:         getCSVEnv("ODDS_MARKETS", []string{"h2h", "spreads", "totals"}),
		OddsRegions:         getEnv("ODDS_REGIONS", "us"),
		BookmakerWhitelist:  getCSVEnv("BOOKMAKER_WHITELIST", nil),

		SharpBooks:     getCSVEnv("SHARP_BOOKS", []string{"pinnacle", "circa", "betonlineag", "bovada"}),
		SharpWeight:    getFloatEnv("SHARP_WEIGHT", 2.0),
		StandardWeight: getFloatEnv("STANDARD_WEIGHT", 1.0),

		ConsensusMinBooks: getIntEnv("CONSENSUS_MIN_BOOKS", 5),
		ConsensusEps:      getFloatEnv("CONSENSUS_EPS", 1e-9),

		PickMinEV:     getFloatEnv("PICK_MIN_EV", 0.015),
		PickMinBooks:  getIntEnv("PICK_MIN_BOOKS", 5),
		PickMaxPerRun: getIntEnv("PICK_MAX_PER_RUN", 50),

		BankrollPaper:   getFloatEnv("BANKROLL_PAPER", 10000),
		KellyMultiplier: getFloatEnv("KELLY_MULTIPLIER", 0.25),
		KellyMaxCap:     getFloatEnv("KELLY_MAX_CAP", 0.05),
		KellyCap:        getFloatEnv("KELLY_CAP", 0.01),

		DeltaHashStrict: getBoolEnv("DELTA_HASH_STRICT", true),

		EnableScheduler:        getBoolEnv("ENABLE_SCHEDULER", false),
		SchedIngestIntervalSec: getIntEnv("SCHED_INGEST_INTERVAL_SEC", 600),
		SchedPicksIntervalSec:  getIntEnv("SCHED_PICKS_INTERVAL_SEC", 600),
		SchedCLVIntervalSec:    getIntEnv("SCHED_CLV_INTERVAL_SEC", 1800),
		SchedJitterSec:         getIntEnv("SCHED_JITTER_SEC", 30),
		SchedMaxConcurrent:     getIntEnv("SCHED_MAX_CONCURRENT", 1),
		SchedRequireDB:         getBoolEnv("SCHED_REQUIRE_DB", false),

		SportsAutorun:  getCSVEnv("SPORTS_AUTORUN", nil),
		MarketsAutorun: getCSVEnv("MARKETS_AUTORUN", []string{"h2h"}),

		MarketsUnlockCLVMin: getIntEnv("MARKETS_UNLOCK_CLV_MIN", 100),
		MarketsUnlockMode:   getEnv("MARKETS_UNLOCK_MODE", "gate"),

		PQSVersion: getEnv("PQS_VERSION", "pqs_v1"),
		PQSEnabled: getBoolEnv("PQS_ENABLED", true),

		CLVPriorWindow:  getIntEnv("CLV_PRIOR_WINDOW", 200),
		CLVMinNForPrior: getIntEnv("CLV_MIN_N_FOR_PRIOR", 30),

		SportDefaultMinPQS:   getFloatEnv("SPORT_DEFAULT_MIN_PQS", 0.65),
		SportDefaultMaxPicks: getIntEnv("SPORT_DEFAULT_MAX_PICKS", 3),
		RunMaxPicksTotal:     getIntEnv("RUN_MAX_PICKS_TOTAL", 8),

		MinBooks:             getIntEnv("MIN_BOOKS", 6),
		SharpBookMin:         getIntEnv("SHARP_BOOK_MIN", 1),
		MaxPriceDispersion:   getFloatEnv("MAX_PRICE_DISPERSION", 0.08),
		MinAgreement:         getFloatEnv("MIN_AGREEMENT", 0.60),
		MinMinutesToStart:    getFloatEnv("MIN_MINUTES_TO_START", 15),
		TimeDecayHalfLifeMin: getFloatEnv("TIME_DECAY_HALF_LIFE_MIN", 240),
		EVFloor:              getFloatEnv("EV_FLOOR", 0.0),

		MaxPriceDispersionBookCount8:          getFloatEnv("MAX_PRICE_DISPERSION_BOOK_COUNT_8", 0.10),
		MaxPriceDispersionSharpEV:             getFloatEnv("MAX_PRICE_DISPERSION_SHARP_EV", 0.12),
		MaxPriceDispersionHardCeiling:         getFloatEnv("MAX_PRICE_DISPERSION_HARD_CEILING", 0.20),
		MinMinutesToStartRelaxed:              getFloatEnv("MIN_MINUTES_TO_START_RELAXED", 5),
		MinMinutesToStartRelaxedMinBooks:      getIntEnv("MIN_MINUTES_TO_START_RELAXED_MIN_BOOKS", 8),
		MinMinutesToStartRelaxedMaxDispersion: getFloatEnv("MIN_MINUTES_TO_START_RELAXED_MAX_DISPERSION", 0.05),

		SportMinPQSOverrides:   sportMinPQS,
		SportMaxPicksOverrides: sportMaxPicks,

		PQSWeightEV:         getFloatEnv("PQS_WEIGHT_EV", 0.30),
		PQSWeightAgreement:  getFloatEnv("PQS_WEIGHT_AGREEMENT", 0.20),
		PQSWeightDispersion: getFloatEnv("PQS_WEIGHT_DISPERSION", 0.15),
		PQSWeightCoverage:   getFloatEnv("PQS_WEIGHT_COVERAGE", 0.10),
		PQSWeightSharp:      getFloatEnv("PQS_WEIGHT_SHARP", 0.10),
		PQSWeightClvPrior:   getFloatEnv("PQS_WEIGHT_CLV_PRIOR", 0.10),
		PQSWeightTime:       getFloatEnv("PQS_WEIGHT_TIME", 0.05),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}
