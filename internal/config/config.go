package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hurou927/docmap/internal/identity"
)

// Config represents the top-level YAML configuration.
type Config struct {
	Connection Connection  `yaml:"connection"`
	Schema     string      `yaml:"schema"`
	IDStrategy string      `yaml:"id_strategy"`
	Documents  []Document  `yaml:"documents"`
	Events     []TypeDecl  `yaml:"events"`
	Aggregates []Aggregate `yaml:"aggregates"`
	Roots      []Root      `yaml:"roots"`
}

// Connection holds database connection parameters.
type Connection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	// ApplicationName is reported to the server as application_name.
	ApplicationName string `yaml:"application_name"`
	MaxConns        int32  `yaml:"max_conns"`
	MinConns        int32  `yaml:"min_conns"`
}

// DefaultApplicationName is used when neither the config nor PGAPPNAME set one.
const DefaultApplicationName = "docmap"

// TypeDecl declares the shape of a type: what a Go struct would give by reflection.
type TypeDecl struct {
	Name    string       `yaml:"name"`
	Package string       `yaml:"package"`
	Host    string       `yaml:"host"`
	Kind    string       `yaml:"kind"`
	Members []MemberDecl `yaml:"members"`
}

// MemberDecl declares one member of a type.
type MemberDecl struct {
	Name      string       `yaml:"name"`
	JSON      string       `yaml:"json"`
	Type      string       `yaml:"type"`
	Field     bool         `yaml:"field"`
	ID        bool         `yaml:"id"`
	Duplicate bool         `yaml:"duplicate"`
	Column    string       `yaml:"column"`
	PgType    string       `yaml:"pgtype"`
	Members   []MemberDecl `yaml:"members"`
}

// Document declares a mapped document type and its storage options.
type Document struct {
	TypeDecl `yaml:",inline"`

	Alias        string                 `yaml:"alias"`
	Schema       string                 `yaml:"schema"`
	Optimistic   bool                   `yaml:"optimistic"`
	Searching    string                 `yaml:"searching"`
	IDStrategy   string                 `yaml:"id_strategy"`
	Hilo         *identity.HiloSettings `yaml:"hilo"`
	Duplicates   []Duplicate            `yaml:"duplicates"`
	Indexes      []Index                `yaml:"indexes"`
	GinIndexData bool                   `yaml:"gin_index_data"`
	ForeignKeys  []ForeignKey           `yaml:"foreign_keys"`
	SubClasses   []SubClass             `yaml:"subclasses"`
}

// Duplicate promotes a (possibly nested) member path to its own column.
type Duplicate struct {
	Member string `yaml:"member"`
	Column string `yaml:"column"`
	PgType string `yaml:"pgtype"`
}

// Index declares an index over columns of the document table.
type Index struct {
	Columns    []string `yaml:"columns"`
	Method     string   `yaml:"method"`
	Unique     bool     `yaml:"unique"`
	Concurrent bool     `yaml:"concurrent"`
	Modifier   string   `yaml:"modifier"`
	Name       string   `yaml:"name"`
}

// ForeignKey links a member to the id of another declared document.
type ForeignKey struct {
	Member     string `yaml:"member"`
	References string `yaml:"references"`
}

// SubClass declares a subtype stored in its parent's table.
type SubClass struct {
	TypeDecl `yaml:",inline"`

	Alias string `yaml:"alias"`
}

// Aggregate registers a declared document as an event-sourced aggregate.
type Aggregate struct {
	Document string `yaml:"document"`
	Alias    string `yaml:"alias"`
}

// Root defines a document type to export with an optional WHERE clause.
type Root struct {
	Document string `yaml:"document"`
	Where    string `yaml:"where"`
}

// DSN builds a PostgreSQL connection string.
func (c *Connection) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
	)
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, fills defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv fills in empty Connection fields from environment variables.
// YAML values take precedence; env vars are used only as fallback.
func (c *Config) applyEnv() {
	conn := &c.Connection
	if conn.Host == "" {
		conn.Host = envOr("PGHOST", "POSTGRES_HOST")
	}
	if conn.Port == 0 {
		if s := envOr("PGPORT", "POSTGRES_PORT"); s != "" {
			if p, err := strconv.Atoi(s); err == nil {
				conn.Port = p
			}
		}
	}
	if conn.Database == "" {
		conn.Database = envOr("PGDATABASE", "POSTGRES_DB")
	}
	if conn.User == "" {
		conn.User = envOr("PGUSER", "POSTGRES_USER")
	}
	if conn.Password == "" {
		conn.Password = envOr("PGPASSWORD", "POSTGRES_PASSWORD")
	}
	if conn.SSLMode == "" {
		conn.SSLMode = envOr("PGSSLMODE")
	}
	if conn.ApplicationName == "" {
		conn.ApplicationName = envOr("PGAPPNAME")
	}
}

// envOr returns the first non-empty value from the given env var names.
func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// validate fills defaults and checks the declarations. The connection is
// checked separately since only database commands need it.
func (c *Config) validate() error {
	if c.Connection.Port == 0 {
		c.Connection.Port = 5432
	}
	if c.Connection.SSLMode == "" {
		c.Connection.SSLMode = "disable"
	}
	if c.Connection.ApplicationName == "" {
		c.Connection.ApplicationName = DefaultApplicationName
	}
	if c.Connection.MaxConns < 0 || c.Connection.MinConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	if c.Connection.MaxConns > 0 && c.Connection.MinConns > c.Connection.MaxConns {
		return fmt.Errorf("connection.min_conns %d exceeds max_conns %d", c.Connection.MinConns, c.Connection.MaxConns)
	}
	if c.Schema == "" {
		c.Schema = "public"
	}
	if _, err := identity.Parse(c.IDStrategy); err != nil {
		return fmt.Errorf("id_strategy: %w", err)
	}

	names := make(map[string]bool, len(c.Documents))
	for i, d := range c.Documents {
		if d.Name == "" {
			return fmt.Errorf("documents[%d].name is required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("document %s is declared twice", d.Name)
		}
		names[d.Name] = true
		if _, err := d.ToType(); err != nil {
			return fmt.Errorf("document %s: %w", d.Name, err)
		}
		for j, sc := range d.SubClasses {
			if _, err := sc.ToType(); err != nil {
				return fmt.Errorf("document %s: subclasses[%d]: %w", d.Name, j, err)
			}
		}
		for j, dup := range d.Duplicates {
			if dup.Member == "" {
				return fmt.Errorf("document %s: duplicates[%d].member is required", d.Name, j)
			}
		}
		for j, idx := range d.Indexes {
			if len(idx.Columns) == 0 {
				return fmt.Errorf("document %s: indexes[%d].columns is required", d.Name, j)
			}
		}
	}

	for _, d := range c.Documents {
		for j, fk := range d.ForeignKeys {
			if fk.Member == "" {
				return fmt.Errorf("document %s: foreign_keys[%d].member is required", d.Name, j)
			}
			if !names[fk.References] {
				return fmt.Errorf("document %s: foreign_keys[%d] references undeclared document %q", d.Name, j, fk.References)
			}
		}
	}
	for i, e := range c.Events {
		if e.Name == "" {
			return fmt.Errorf("events[%d].name is required", i)
		}
		if _, err := e.ToType(); err != nil {
			return fmt.Errorf("event %s: %w", e.Name, err)
		}
	}
	for i, a := range c.Aggregates {
		if !names[a.Document] {
			return fmt.Errorf("aggregates[%d] references undeclared document %q", i, a.Document)
		}
	}
	for i, r := range c.Roots {
		if !names[r.Document] {
			return fmt.Errorf("roots[%d] references undeclared document %q", i, r.Document)
		}
	}
	return nil
}

// ValidateConnection checks the fields required to reach the database.
func (c *Config) ValidateConnection() error {
	if c.Connection.Host == "" {
		return fmt.Errorf("connection.host is required")
	}
	if c.Connection.Database == "" {
		return fmt.Errorf("connection.database is required")
	}
	if c.Connection.User == "" {
		return fmt.Errorf("connection.user is required")
	}
	return nil
}

// ValidateForExport checks additional fields required for export.
func (c *Config) ValidateForExport() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("at least one root document must be specified in config")
	}
	return nil
}

// Document returns the declaration named name.
func (c *Config) Document(name string) (*Document, bool) {
	for i := range c.Documents {
		if strings.EqualFold(c.Documents[i].Name, name) {
			return &c.Documents[i], true
		}
	}
	return nil, false
}
