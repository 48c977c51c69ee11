// Package models holds the data model shared by the registry, handlers,
// profiler, pipeline, and storage layers.
package models

// Engine identifies a supported database engine.
type Engine string

const (
	EnginePostgres  Engine = "postgres"
	EngineMySQL     Engine = "mysql"
	EngineSQLite    Engine = "sqlite"
	EngineOracle    Engine = "oracle"
	EngineBigQuery  Engine = "bigquery"
	EngineDuckDB    Engine = "duckdb"
	EngineSQLServer Engine = "sqlserver"
)

// KnownEngines lists every engine the registry accepts.
var KnownEngines = []Engine{
	EnginePostgres, EngineMySQL, EngineSQLite, EngineOracle,
	EngineBigQuery, EngineDuckDB, EngineSQLServer,
}

// Valid reports whether e is a known engine.
func (e Engine) Valid() bool {
	for _, k := range KnownEngines {
		if e == k {
			return true
		}
	}
	return false
}

// SourceTier identifies where a connection spec was defined. Lookup
// precedence is user > system > file.
type SourceTier string

const (
	TierUser   SourceTier = "user"
	TierSystem SourceTier = "system"
	TierFile   SourceTier = "file"
)

// Credentials describes how a connection's secret is obtained. Exactly one
// strategy applies: inline value, environment indirection, or the
// per-(owner, name) session cache.
type Credentials struct {
	// Inline password or key material. Never persisted to disk.
	Inline string `json:"-" yaml:"password,omitempty"`
	// EnvVar names an environment variable holding the secret.
	EnvVar string `json:"env_var,omitempty" yaml:"password_env,omitempty"`
	// FromSession selects the in-process session cache.
	FromSession bool `json:"from_session,omitempty" yaml:"from_session,omitempty"`
}

// ConnectionSpec is a named descriptor for reaching a database.
// (Owner, Name) is unique per tier.
type ConnectionSpec struct {
	Name     string `json:"name" yaml:"name"`
	Owner    string `json:"owner,omitempty" yaml:"-"`
	Engine   Engine `json:"engine" yaml:"engine"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`

	// Path is the file path for embedded engines (sqlite, duckdb).
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ProjectID and CredentialsFile apply to BigQuery.
	ProjectID       string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	Credentials Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// AllowedSchemas restricts which schemas are visible; empty means all.
	AllowedSchemas []string `json:"allowed_schemas,omitempty" yaml:"allowed_schemas,omitempty"`

	// PredefinedSchemas holds per-schema table filters keyed by schema name.
	PredefinedSchemas map[string]*SchemaFilter `json:"predefined_schemas,omitempty" yaml:"predefined_schemas,omitempty"`

	Tier SourceTier `json:"tier" yaml:"-"`
}

// SchemaFilter is a per-schema table inclusion policy. Evaluation order is
// fixed: enabled gate, allow-list intersection, include patterns, deny-list,
// exclude patterns.
type SchemaFilter struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Tables          []string `json:"tables,omitempty" yaml:"tables,omitempty"`
	ExcludedTables  []string `json:"excluded_tables,omitempty" yaml:"excluded_tables,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
}
