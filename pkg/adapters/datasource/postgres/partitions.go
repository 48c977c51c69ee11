package postgres

import (
	"context"

	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// PartitionInfo reads declarative partitioning metadata from pg_catalog.
// Partition children are ordered name-descending, which for the common
// time-suffixed naming convention means newest first.
func (h *Handler) PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	var column, ptype *string
	err := h.pool.QueryRow(ctx, `
		SELECT a.attname,
		       CASE p.partstrat WHEN 'r' THEN 'RANGE' WHEN 'l' THEN 'LIST' WHEN 'h' THEN 'HASH' END
		FROM pg_partitioned_table p
		JOIN pg_class c ON c.oid = p.partrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = p.partattrs[0]
		WHERE n.nspname = $1 AND c.relname = $2`, schema, table).Scan(&column, &ptype)
	if err != nil {
		// Not a partitioned table.
		return nil, nil
	}

	info := &models.PartitionInfo{IsPartitioned: true}
	if column != nil {
		info.PartitionColumn = *column
	}
	if ptype != nil {
		info.PartitionType = *ptype
	}

	rows, err := h.pool.Query(ctx, `
		SELECT child.relname, child.reltuples::bigint, pg_total_relation_size(child.oid)
		FROM pg_inherits
		JOIN pg_class parent ON parent.oid = pg_inherits.inhparent
		JOIN pg_class child ON child.oid = pg_inherits.inhrelid
		JOIN pg_namespace n ON n.oid = parent.relnamespace
		WHERE n.nspname = $1 AND parent.relname = $2
		ORDER BY child.relname DESC
		LIMIT $3`, schema, table, maxPartitions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stat models.PartitionStat
		if err := rows.Scan(&stat.PartitionID, &stat.RowCount, &stat.ByteSize); err != nil {
			return nil, err
		}
		if stat.RowCount < 0 {
			stat.RowCount = 0
		}
		info.AvailablePartitions = append(info.AvailablePartitions, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return info, nil
}
