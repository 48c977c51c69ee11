// Package all registers every engine adapter. Import for side effects from
// binaries that need the full engine set.
package all

import (
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/bigquery"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/duckdb"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/mssql"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/mysql"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/oracle"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/postgres"
	_ "github.com/tablesage/tablesage/pkg/adapters/datasource/sqlite"
)
