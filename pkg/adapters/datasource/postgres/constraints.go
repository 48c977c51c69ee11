package postgres

import (
	"context"

	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

func (h *Handler) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	out := &models.Constraints{}

	pkRows, err := h.pool.Query(ctx, `
		SELECT k.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage k
		  ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY k.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	if out.PrimaryKey, err = scanStrings(pkRows); err != nil {
		return nil, err
	}

	if out.ForeignKeys, err = h.foreignKeys(ctx, schema, table); err != nil {
		return nil, err
	}
	if out.Unique, err = h.uniqueConstraints(ctx, schema, table); err != nil {
		return nil, err
	}
	if out.Checks, err = h.checkConstraints(ctx, schema, table); err != nil {
		return nil, err
	}

	return out, nil
}

func (h *Handler) foreignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name, rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.constraint_name, kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byName := map[string]*models.ForeignKey{}
	for rows.Next() {
		var name, column, refTable, refColumn string
		var onDelete *string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onDelete); err != nil {
			return nil, err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &models.ForeignKey{Name: name, ReferencedTable: refTable}
			if onDelete != nil {
				fk.OnDelete = *onDelete
			}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ForeignKey, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (h *Handler) uniqueConstraints(ctx context.Context, schema, table string) ([]models.UniqueConstraint, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT tc.constraint_name, k.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage k
		  ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'UNIQUE'
		ORDER BY tc.constraint_name, k.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byName := map[string]*models.UniqueConstraint{}
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, err
		}
		uc, ok := byName[name]
		if !ok {
			uc = &models.UniqueConstraint{Name: name}
			byName[name] = uc
			order = append(order, name)
		}
		uc.Columns = append(uc.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.UniqueConstraint, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (h *Handler) checkConstraints(ctx context.Context, schema, table string) ([]models.CheckConstraint, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2 AND con.contype = 'c'`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CheckConstraint
	for rows.Next() {
		var name, expr string
		if err := rows.Scan(&name, &expr); err != nil {
			return nil, err
		}
		out = append(out, models.CheckConstraint{Name: name, Expression: expr})
	}
	return out, rows.Err()
}
