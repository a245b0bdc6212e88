// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RealtimeCfg struct {
	Enabled          bool
	Brokers          string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
	DedupeSize       int
}

type IntakeCfg struct {
	Enabled bool
	Topic   string
	Queue   int
}

type Config struct {
	Addr              string
	LogLevel          string
	UpstreamURL       string
	RedisAddr         string
	CacheEnabled      bool
	CacheOpTimeout    time.Duration
	CacheTTLDefault   time.Duration
	CacheTTLOvr       map[string]time.Duration
	FetchTimeout      time.Duration
	RefreshMaxWorkers int
	RefreshQueue      int
	Backend           string
	WSSendBuffer      int
	ClusterResMin     int
	ClusterResMax     int
	Realtime          RealtimeCfg
	Intake            IntakeCfg
}

func FromEnv() Config {
	resMin := getint("CLUSTER_RES_MIN", 3)
	resMax := getint("CLUSTER_RES_MAX", 9)
	if resMin < 0 {
		resMin = 0
	}
	if resMax > 15 {
		resMax = 15
	}
	if resMin > resMax {
		resMin, resMax = 3, 9
	}

	brokers := getenv("KAFKA_BROKERS", "localhost:9092")

	return Config{
		Addr:              getenv("ADDR", ":8090"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		UpstreamURL:       getenv("UPSTREAM_URL", "http://localhost:8080"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:      getbool("CACHE_ENABLED", true),
		CacheOpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault:   getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:       parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		FetchTimeout:      getduration("FETCH_TIMEOUT", 10*time.Second),
		RefreshMaxWorkers: getint("REFRESH_MAX_WORKERS", 4),
		RefreshQueue:      getint("REFRESH_QUEUE", 16),
		Backend:           getenv("MAP_BACKEND", "broadcast"),
		WSSendBuffer:      getint("WS_SEND_BUFFER", 64),
		ClusterResMin:     resMin,
		ClusterResMax:     resMax,
		Realtime: RealtimeCfg{
			Enabled:          getbool("REALTIME_ENABLED", false),
			Brokers:          brokers,
			Topic:            getenv("KAFKA_TOPIC", "entity-changes"),
			GroupID:          getenv("KAFKA_GROUP_ID", "geolayers-sync"),
			SessionTimeout:   getduration("KAFKA_SESSION_TIMEOUT", 10*time.Second),
			Heartbeat:        getduration("KAFKA_HEARTBEAT", 3*time.Second),
			RebalanceTimeout: getduration("KAFKA_REBALANCE_TIMEOUT", 60*time.Second),
			InitialOldest:    getbool("KAFKA_INITIAL_OLDEST", false),
			DedupeSize:       getint("REALTIME_DEDUPE_SIZE", 8192),
		},
		Intake: IntakeCfg{
			Enabled: getbool("INTAKE_PUBLISH_ENABLED", false),
			Topic:   getenv("INTAKE_TOPIC", "entity-changes"),
			Queue:   getint("INTAKE_QUEUE", 1024),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "layer=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	parts := strings.SplitSeq(s, ",")
	for p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
