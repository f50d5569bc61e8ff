/*
Package config provides configuration management for tiercache.

Configuration is layered, each source overriding the one below it:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (TIERCACHE_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	│        (NewDefault)                         │
	└─────────────────────────────────────────────┘

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("tiercache.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

# Cache Levels

The cache section names a displacement strategy (lru, mru or random) and an
ordered list of levels, fastest first. Each level has a kind (memory, file
or s3) and a positive capacity:

	cache:
	  strategy: lru
	  levels:
	    - kind: memory
	      capacity: 100
	    - kind: file
	      capacity: 1000
	      directory: /var/cache/tiercache
	      compression: true
	    - kind: s3
	      capacity: 100000
	      s3:
	        bucket: my-cache
	        key: tiers/level2.img
	        region: us-west-2

When no levels are listed the cache gets a memory level of base_size
entries followed by a file level of base_size*multiplier entries in
directory. A product too large for an int is clamped to the largest int.

# Environment Variables

	TIERCACHE_LOG_LEVEL        DEBUG, INFO, WARN or ERROR
	TIERCACHE_LOG_FORMAT       text or json
	TIERCACHE_LOG_FILE         log file path (stderr when empty)
	TIERCACHE_STRATEGY         lru, mru or random
	TIERCACHE_BASE_SIZE        capacity of the default memory level
	TIERCACHE_MULTIPLIER       file level capacity factor
	TIERCACHE_CACHE_DIR        directory of the default file level
	TIERCACHE_COMPRESSION      gzip file level images
	TIERCACHE_METRICS_ENABLED  serve Prometheus metrics
	TIERCACHE_METRICS_PORT     metrics listen port

Unparsable values are reported as CONFIG_LOAD errors; Validate reports
CONFIG_VALIDATION errors.
*/
package config
