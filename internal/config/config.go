package config // package config loads application configuration from environment variables

import (
    "errors"
    "io/fs"
    "log"
    "net/url"
    "time"

    "github.com/joho/godotenv"
)

// Config holds the runtime configuration of the move-mode service.  Each
// field corresponds to an environment variable.
type Config struct {
    Env  string // APP_ENV (dev, test, prod)
    Port string // APP_PORT

    BackendBaseURL string        // BACKEND_BASE_URL, root of the reservation service
    BackendTimeout time.Duration // BACKEND_TIMEOUT, per request

    CSRFToken         string        // CSRF_TOKEN, static anti-forgery token
    CSRFSigningSecret string        // CSRF_SIGNING_SECRET, signs short-lived tokens instead
    CSRFHeader        string        // CSRF_HEADER
    CSRFTokenTTL      time.Duration // CSRF_TOKEN_TTL
    Operator          string        // OPERATOR_NAME, subject of signed tokens

    UndoLimit        int           // UNDO_LIMIT
    HighlightTimeout time.Duration // HIGHLIGHT_TIMEOUT

    JWTSecret string // JWT_SECRET, empty leaves the operator API open

    AMQPURL string // RABBITMQ_URL or AMQP_URL, empty disables event fan-out
    Queue   string // MOVES_QUEUE

    DBUser string // DB_USER
    DBPass string // DB_PASS (optional)
    DBHost string // DB_HOST
    DBPort string // DB_PORT
    DBName string // DB_NAME
}

// Load reads a .env file when present and then the process environment.
// BACKEND_BASE_URL is the only required variable.
func Load() (Config, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
        log.Printf("config: .env not loaded: %v", err)
    }

    base, err := must("BACKEND_BASE_URL")
    if err != nil {
        return Config{}, err
    }
    if u, perr := url.Parse(base); perr != nil || u.Scheme == "" || u.Host == "" {
        return Config{}, errors.New("invalid BACKEND_BASE_URL: " + base)
    }

    return Config{
        Env:               envStr("APP_ENV", "dev"),
        Port:              envStr("APP_PORT", "8080"),
        BackendBaseURL:    base,
        BackendTimeout:    envDur("BACKEND_TIMEOUT", 10*time.Second),
        CSRFToken:         envStr("CSRF_TOKEN", ""),
        CSRFSigningSecret: envStr("CSRF_SIGNING_SECRET", ""),
        CSRFHeader:        envStr("CSRF_HEADER", "X-CSRFToken"),
        CSRFTokenTTL:      envDur("CSRF_TOKEN_TTL", 5*time.Minute),
        Operator:          envStr("OPERATOR_NAME", "move-mode"),
        UndoLimit:         envInt("UNDO_LIMIT", 20),
        HighlightTimeout:  envDur("HIGHLIGHT_TIMEOUT", 5*time.Second),
        JWTSecret:         envStr("JWT_SECRET", ""),
        AMQPURL:           envFirst("RABBITMQ_URL", "AMQP_URL"),
        Queue:             envStr("MOVES_QUEUE", "moves.events"),
        DBUser:            envStr("DB_USER", ""),
        DBPass:            envStr("DB_PASS", ""),
        DBHost:            envStr("DB_HOST", "127.0.0.1"),
        DBPort:            envStr("DB_PORT", "3306"),
        DBName:            envStr("DB_NAME", ""),
    }, nil
}

// JournalConfig is what cmd/journal needs: the broker, the database and
// the port its read API listens on.
type JournalConfig struct {
    Port      string // JOURNAL_PORT
    JWTSecret string // JWT_SECRET, empty leaves the read API open
    AMQPURL   string
    Queue     string
    DBUser    string
    DBPass    string
    DBHost    string
    DBPort    string
    DBName    string
}

// LoadJournal reads the journal consumer configuration.  The broker URL
// and database credentials are required.
func LoadJournal() (JournalConfig, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
        log.Printf("config: .env not loaded: %v", err)
    }
    jc := JournalConfig{
        Port:      envStr("JOURNAL_PORT", "8081"),
        JWTSecret: envStr("JWT_SECRET", ""),
        AMQPURL:   envFirst("RABBITMQ_URL", "AMQP_URL"),
        Queue:     envStr("MOVES_QUEUE", "moves.events"),
        DBPass:    envStr("DB_PASS", ""),
        DBHost:    envStr("DB_HOST", "127.0.0.1"),
        DBPort:    envStr("DB_PORT", "3306"),
    }
    if jc.AMQPURL == "" {
        return JournalConfig{}, errors.New("missing required env var: RABBITMQ_URL")
    }
    var err error
    if jc.DBUser, err = must("DB_USER"); err != nil {
        return JournalConfig{}, err
    }
    if jc.DBName, err = must("DB_NAME"); err != nil {
        return JournalConfig{}, err
    }
    return jc, nil
}
