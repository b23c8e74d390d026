package config

import "errors"

// Configuration problems are fatal at startup, never per-request.
var (
	ErrMissingClientID     = errors.New("missing GOOGLE_CLIENT_ID")
	ErrMissingClientSecret = errors.New("missing GOOGLE_CLIENT_SECRET")
	ErrMissingRedirectURL  = errors.New("missing OAUTH_REDIRECT_URL")
	ErrInvalidRedirectURL  = errors.New("OAUTH_REDIRECT_URL must be an absolute http or https URL")
	ErrMissingRedisURL     = errors.New("missing REDIS_URL for the redis session store")
	ErrMissingSQLitePath   = errors.New("missing SQLITE_PATH for the sqlite session store")
	ErrUnknownSessionStore = errors.New("SESSION_STORE must be one of memory, redis, sqlite")
	ErrInvalidSessionTTL   = errors.New("SESSION_TTL must be positive")
)
