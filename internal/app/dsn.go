package app

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Supported database types.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

const (
	defaultSQLitePath   = "marketplace.db"
	defaultPostgresPort = 5432
	defaultSSLMode      = "disable"
)

// sqliteParams are appended to every generated SQLite DSN.
var sqliteParams = []string{
	"_busy_timeout=5000",
	"_journal_mode=WAL",
	"_foreign_keys=on",
	"_synchronous=NORMAL",
}

// DatabaseSpec describes a database connection in form fields.
type DatabaseSpec struct {
	Type        string `json:"database_type"`
	Host        string `json:"database_host"`
	Port        int    `json:"database_port"`
	User        string `json:"database_user"`
	Password    string `json:"database_password,omitempty"`
	Name        string `json:"database_name"`
	Path        string `json:"database_path"`
	SSLMode     string `json:"database_ssl_mode"`
	PasswordSet bool   `json:"database_password_set"`
}

// normalize lowercases the type and fills defaults, then checks required fields.
func (s *DatabaseSpec) normalize() error {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" {
		s.Type = DatabasePostgres
	}
	switch s.Type {
	case DatabasePostgres:
		s.Host = strings.TrimSpace(s.Host)
		s.User = strings.TrimSpace(s.User)
		s.Name = strings.TrimSpace(s.Name)
		switch {
		case s.Host == "":
			return fmt.Errorf("Database host is required")
		case s.Port <= 0 || s.Port > 65535:
			return fmt.Errorf("Invalid database port")
		case s.User == "":
			return fmt.Errorf("Database username is required")
		case s.Name == "":
			return fmt.Errorf("Database name is required")
		case strings.TrimSpace(s.Password) == "":
			return fmt.Errorf("Database password is required")
		}
		if strings.TrimSpace(s.SSLMode) == "" {
			s.SSLMode = defaultSSLMode
		}
	case DatabaseSQLite:
		s.Path = strings.TrimSpace(s.Path)
		if s.Path == "" {
			s.Path = defaultSQLitePath
		}
	default:
		return fmt.Errorf("Unsupported database type")
	}
	return nil
}

// BuildDSN renders database form fields as a DSN accepted by db.Open.
func BuildDSN(spec DatabaseSpec) (string, error) {
	if errNormalize := spec.normalize(); errNormalize != nil {
		return "", errNormalize
	}
	if spec.Type == DatabaseSQLite {
		path := spec.Path
		if !strings.HasPrefix(strings.ToLower(path), "file:") {
			path = "file:" + path
		}
		separator := "?"
		if strings.Contains(path, "?") {
			separator = "&"
		}
		return path + separator + strings.Join(sqliteParams, "&"), nil
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(spec.User, spec.Password),
		Host:     net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port)),
		Path:     "/" + spec.Name,
		RawQuery: url.Values{"sslmode": {spec.SSLMode}}.Encode(),
	}
	return u.String(), nil
}

// DescribeDSN parses a DSN back into form fields without exposing the password.
func DescribeDSN(dsn string) (DatabaseSpec, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return DatabaseSpec{}, fmt.Errorf("empty dsn")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		path, _, _ := strings.Cut(trimmed[len("file:"):], "?")
		return DatabaseSpec{Type: DatabaseSQLite, Path: strings.TrimSpace(path)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return DatabaseSpec{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
	default:
		return DatabaseSpec{}, fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}
	spec := DatabaseSpec{
		Type:    DatabasePostgres,
		Host:    u.Hostname(),
		Port:    defaultPostgresPort,
		Name:    strings.TrimPrefix(u.Path, "/"),
		SSLMode: u.Query().Get("sslmode"),
	}
	if rawPort := u.Port(); rawPort != "" {
		port, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return DatabaseSpec{}, fmt.Errorf("parse port: %w", errPort)
		}
		spec.Port = port
	}
	if u.User != nil {
		spec.User = u.User.Username()
		_, spec.PasswordSet = u.User.Password()
	}
	if spec.SSLMode == "" {
		spec.SSLMode = defaultSSLMode
	}
	return spec, nil
}
