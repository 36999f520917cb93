package conf

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/casebridge/dispatch-migrate/internal/logger"
)

// EffectivePort returns the configured port or the driver's default.
func (d *DatabaseSettings) EffectivePort() int {
	if d.Port > 0 {
		return d.Port
	}
	switch d.Driver {
	case DriverMySQL:
		return 3306
	case DriverPostgres:
		return 5432
	default:
		return 0
	}
}

// GetDSN returns the driver-specific connection string.
// If DSN is set directly, it's returned as-is.
func (d *DatabaseSettings) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}

	switch d.Driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort()))
		cfg.DBName = d.Name
		cfg.ParseTime = true
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN()
	case DriverSQLite:
		return d.Name
	default:
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = DefaultSSLMode
		}
		parts := []string{
			"host=" + quoteKeyword(d.Host),
			"port=" + strconv.Itoa(d.EffectivePort()),
			"dbname=" + quoteKeyword(d.Name),
			"sslmode=" + sslMode,
		}
		if d.User != "" {
			parts = append(parts, "user="+quoteKeyword(d.User))
		}
		if d.Password != "" {
			parts = append(parts, "password="+quoteKeyword(d.Password))
		}
		return strings.Join(parts, " ")
	}
}

// GetSanitizedDSN returns the DSN with the password masked for logging.
func (d *DatabaseSettings) GetSanitizedDSN() string {
	if d.DSN == "" && d.Password != "" {
		masked := *d
		masked.Password = "****"
		return masked.GetDSN()
	}
	dsn := d.GetDSN()
	if d.Driver == DriverMySQL {
		if cfg, err := mysql.ParseDSN(dsn); err == nil {
			if cfg.Passwd != "" {
				cfg.Passwd = "****"
			}
			return cfg.FormatDSN()
		}
	}
	return logger.RedactSensitiveData(dsn)
}

// Location returns host:port/name for display.
func (d *DatabaseSettings) Location() string {
	if d.Driver == DriverSQLite {
		return d.GetDSN()
	}
	if d.DSN != "" {
		return d.Driver + " (dsn)"
	}
	return fmt.Sprintf("%s:%d/%s", d.Host, d.EffectivePort(), d.Name)
}

// quoteKeyword quotes a libpq keyword/value when it contains spaces or quotes.
func quoteKeyword(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}
