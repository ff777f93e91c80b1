package config // package config loads application configuration from environment variables

import (
    "fmt"
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings"
    "time"

    "github.com/iliyamo/gate-redemption/internal/redemption"
)

// Store drivers accepted in STORE_DRIVER.
const (
    DriverMySQL  = "mysql"
    DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database settings are only required when the
// MySQL driver is selected.
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    StoreDriver   string // "mysql" (default) or "memory"
    DBUser        string // database username
    DBPass        string // database password (optional)
    DBHost        string // database host address
    DBPort        string // database port number
    DBName        string // database name
    DBLockWaitSec int    // innodb_lock_wait_timeout for each connection
    DemoTickets   int    // tickets to seed into the memory store at startup

    JWTSecret         string // secret used to sign operator tokens
    AccessTTLMin      int    // operator token time-to-live in minutes
    ScannerPINHash    string // bcrypt hash of the gate scanner PIN
    SupervisorPINHash string // bcrypt hash of the supervisor PIN

    RedemptionPolicy string        // "cooldown" or "occasion"
    Cooldown         time.Duration // MULTI re-entry gap under the cooldown policy
    Occasions        string        // NAME=RFC3339 list under the occasion policy
    RedeemTimeout    time.Duration // bound on one redemption transaction

    CodeLength       int // digits in a manual-entry code
    MinJustification int // minimum override justification length in runes
    SearchLimit      int // maximum rows returned by a holder search

    RabbitURL     string // AMQP broker url, empty disables events
    AuditConsumer bool   // run the override log consumer in-process
    AuditLogPath  string // file the consumer appends to
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    c := Config{
        Env:  must("APP_ENV"),
        Port: envStr("APP_PORT", "8080"),

        StoreDriver:   strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
        DBPass:        os.Getenv("DB_PASS"), // empty allowed
        DBLockWaitSec: envInt("DB_LOCK_WAIT_TIMEOUT", 3),
        DemoTickets:   envInt("DEMO_TICKETS", 0),

        JWTSecret:         must("JWT_SECRET"),
        AccessTTLMin:      mustInt("ACCESS_TOKEN_TTL_MIN"),
        ScannerPINHash:    must("SCANNER_PIN_HASH"),
        SupervisorPINHash: must("SUPERVISOR_PIN_HASH"),

        RedemptionPolicy: strings.ToLower(envStr("REDEMPTION_POLICY", string(redemption.PolicyCooldown))),
        Cooldown:         envDur("COOLDOWN", redemption.DefaultCooldown),
        Occasions:        os.Getenv("OCCASIONS"),
        RedeemTimeout:    envDur("REDEEM_TIMEOUT", redemption.DefaultTimeout),

        CodeLength:       envInt("CODE_LENGTH", 6),
        MinJustification: envInt("MIN_JUSTIFICATION_LENGTH", 10),
        SearchLimit:      envInt("SEARCH_LIMIT", 20),

        RabbitURL:     os.Getenv("RABBITMQ_URL"),
        AuditConsumer: envBool("AUDIT_CONSUMER", false),
        AuditLogPath:  envStr("AUDIT_LOG_PATH", "logs/override.log"),
    }
    switch c.StoreDriver {
    case DriverMySQL:
        c.DBUser = must("DB_USER")
        c.DBHost = must("DB_HOST")
        c.DBPort = envStr("DB_PORT", "3306")
        c.DBName = must("DB_NAME")
    case DriverMemory:
    default:
        log.Fatalf("invalid STORE_DRIVER: %q", c.StoreDriver)
    }
    return c
}

// Policy builds the redemption policy the deployment runs.  Exactly one
// policy is active; the occasion policy requires a non-empty schedule.
func (c Config) Policy() (redemption.Policy, error) {
    switch redemption.PolicyKind(c.RedemptionPolicy) {
    case redemption.PolicyCooldown, "":
        return redemption.NewCooldownPolicy(c.Cooldown), nil
    case redemption.PolicyOccasion:
        occ, err := redemption.ParseSchedule(c.Occasions)
        if err != nil {
            return nil, fmt.Errorf("OCCASIONS: %w", err)
        }
        return redemption.NewOccasionPolicy(occ)
    default:
        return nil, fmt.Errorf("unknown REDEMPTION_POLICY %q", c.RedemptionPolicy)
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
