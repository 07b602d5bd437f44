package seeder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	WarehousePath   string
	TablePrefix     string
	StartDate       string
	EndDate         string
	RowsPerDay      int
	UserCardinality int
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		WarehousePath:   "querypilot.duckdb",
		TablePrefix:     "events",
		StartDate:       "2020-11-01",
		EndDate:         "2021-01-31",
		RowsPerDay:      500,
		UserCardinality: 200,
		Seed:            42,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "QUERYPILOT_SEED_WAREHOUSE_PATH", &cfg.WarehousePath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_SEED_TABLE_PREFIX", &cfg.TablePrefix); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_SEED_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "QUERYPILOT_SEED_END_DATE", &cfg.EndDate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_SEED_ROWS_PER_DAY", &cfg.RowsPerDay); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "QUERYPILOT_SEED_USER_CARDINALITY", &cfg.UserCardinality); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "QUERYPILOT_SEED_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.WarehousePath) == "" {
		return Config{}, fmt.Errorf("QUERYPILOT_SEED_WAREHOUSE_PATH is required")
	}
	if strings.TrimSpace(cfg.TablePrefix) == "" {
		return Config{}, fmt.Errorf("QUERYPILOT_SEED_TABLE_PREFIX is required")
	}
	if _, err := time.Parse("2006-01-02", cfg.StartDate); err != nil {
		return Config{}, fmt.Errorf("invalid QUERYPILOT_SEED_START_DATE: %w", err)
	}
	end, err := time.Parse("2006-01-02", cfg.EndDate)
	if err != nil {
		return Config{}, fmt.Errorf("invalid QUERYPILOT_SEED_END_DATE: %w", err)
	}
	start, _ := time.Parse("2006-01-02", cfg.StartDate)
	if end.Before(start) {
		return Config{}, fmt.Errorf("QUERYPILOT_SEED_END_DATE must not precede the start date")
	}
	if cfg.RowsPerDay <= 0 {
		return Config{}, fmt.Errorf("QUERYPILOT_SEED_ROWS_PER_DAY must be > 0")
	}
	if cfg.UserCardinality <= 0 {
		return Config{}, fmt.Errorf("QUERYPILOT_SEED_USER_CARDINALITY must be > 0")
	}

	cfg.WarehousePath = strings.TrimSpace(cfg.WarehousePath)
	cfg.TablePrefix = strings.TrimSpace(cfg.TablePrefix)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
