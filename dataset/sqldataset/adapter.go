package sqldataset

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
)

/*
Adapter is an interface providing the methods
needed to keep a dataset on a database backend.
*/
type Adapter interface {
	// ColumnName returns the name of the column holding the values
	// of the feature with the given name, or an error if the name
	// cannot be used.
	ColumnName(string) (string, error)

	CreateDiscreteValuesTable(context.Context) error
	CreateRowTable(ctx context.Context, discreteColumns, continuousColumns []string) error

	AddDiscreteValues(context.Context, []string) (int, error)
	ListDiscreteValues(context.Context) (map[int]string, error)

	// AddRows inserts rows holding a value for each of the given
	// columns, in the same order, and returns the number of rows
	// inserted.
	AddRows(ctx context.Context, rows [][]interface{}, columns []string) (int, error)
	// IterateOnRows calls lambda with the index and values of every
	// row on the table, in insertion order, for the given discrete and
	// continuous columns in that order. Undefined values are nil.
	// Iterating stops when lambda returns false or an error.
	IterateOnRows(ctx context.Context, discreteColumns, continuousColumns []string, lambda func(int, []interface{}) (bool, error)) error
	CountRows(context.Context) (int, error)

	Close() error
}

/*
Dialect holds what SQL databases differ on for the statements of an
adapter: how placeholders and the id column of tables are written,
and the statements to run on every new connection.
*/
type Dialect struct {
	// Placeholder returns the placeholder for the i-th argument of a
	// statement, starting from 1
	Placeholder func(i int) string
	// IDColumn declares the auto-incremented id column of a table
	IDColumn string
	// FloatType is the column type for continuous values
	FloatType string
	// Setup statements are run before creating tables
	Setup []string
}

const (
	/*
		MaxDiscreteValueInsertionsPerStatement is the maximum number
		of discrete values that are allowed to be added with a single
		insert command with the AddDiscreteValues method of the adapter.
		Trying to add more will result in making more insertion commands
	*/
	MaxDiscreteValueInsertionsPerStatement = 10
	/*
		MaxRowInsertionsPerStatement is the maximum number
		of rows that are allowed to be added with a single
		insert command with the AddRows method of the adapter.
		Trying to add more will result in making more insertion commands
	*/
	MaxRowInsertionsPerStatement = 10
)

type adapter struct {
	db *sql.DB
	d  Dialect
}

// NewAdapter takes a database and its dialect and returns an Adapter
// that works on that database
func NewAdapter(db *sql.DB, d Dialect) Adapter {
	return &adapter{db, d}
}

func (a *adapter) ColumnName(featureName string) (string, error) {
	if featureName == "id" {
		return "", fmt.Errorf(`'%s' is reserved and cannot be used as feature name`, featureName)
	}
	if strings.ContainsAny(featureName, `"`) {
		return "", fmt.Errorf(`feature name '%s' contains invalid character '"'`, featureName)
	}
	return featureName, nil
}

func (a *adapter) exec(ctx context.Context, stmt string, what string, args ...interface{}) error {
	prepared, err := a.db.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("preparing %s statement: %v", what, err)
	}
	defer prepared.Close()
	_, err = prepared.ExecContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("running %s statement: %v", what, err)
	}
	return nil
}

func (a *adapter) CreateDiscreteValuesTable(ctx context.Context) error {
	for _, s := range a.d.Setup {
		if _, err := a.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("running setup statement %q: %v", s, err)
		}
	}
	return a.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS discreteValues (
		"id" %s,
		value TEXT UNIQUE NOT NULL)`, a.d.IDColumn), "discreteValues creation")
}

func (a *adapter) CreateRowTable(ctx context.Context, discreteColumns, continuousColumns []string) error {
	var createStmtBuf bytes.Buffer
	createStmtBuf.WriteString("CREATE TABLE IF NOT EXISTS samples(")
	for _, c := range discreteColumns {
		createStmtBuf.WriteString(fmt.Sprintf(`"%s" INTEGER NULL REFERENCES discreteValues(id), `, c))
	}
	for _, c := range continuousColumns {
		createStmtBuf.WriteString(fmt.Sprintf(`"%s" %s NULL, `, c, a.d.FloatType))
	}
	createStmtBuf.WriteString(fmt.Sprintf(`"id" %s)`, a.d.IDColumn))
	return a.exec(ctx, createStmtBuf.String(), "samples creation")
}

// values returns the VALUES clause for n tuples of width arguments
func (a *adapter) values(n, width int) string {
	var buf bytes.Buffer
	buf.WriteString(" VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString("(")
		for j := 0; j < width; j++ {
			if j > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(a.d.Placeholder(1 + i*width + j))
		}
		buf.WriteString(")")
	}
	return buf.String()
}

func (a *adapter) AddDiscreteValues(ctx context.Context, values []string) (int, error) {
	for chunkStart := 0; chunkStart < len(values); chunkStart += MaxDiscreteValueInsertionsPerStatement {
		chunkEnd := chunkStart + MaxDiscreteValueInsertionsPerStatement
		if chunkEnd > len(values) {
			chunkEnd = len(values)
		}
		args := make([]interface{}, 0, chunkEnd-chunkStart)
		for _, v := range values[chunkStart:chunkEnd] {
			args = append(args, v)
		}
		stmt := "INSERT INTO discreteValues (value)" + a.values(len(args), 1)
		if err := a.exec(ctx, stmt, fmt.Sprintf("insert of %d values", len(args)), args...); err != nil {
			return chunkStart, err
		}
	}
	return len(values), nil
}

func (a *adapter) ListDiscreteValues(ctx context.Context) (map[int]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, value FROM discreteValues`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int]string)
	for rows.Next() {
		var id int
		var value string
		err = rows.Scan(&id, &value)
		if err != nil {
			return nil, err
		}
		result[id] = value
	}
	return result, rows.Err()
}

func (a *adapter) AddRows(ctx context.Context, rows [][]interface{}, columns []string) (int, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("no features to store")
	}
	insertStmtStart := fmt.Sprintf(`INSERT INTO samples ("%s")`, strings.Join(columns, `", "`))
	for chunkStart := 0; chunkStart < len(rows); chunkStart += MaxRowInsertionsPerStatement {
		chunkEnd := chunkStart + MaxRowInsertionsPerStatement
		if chunkEnd > len(rows) {
			chunkEnd = len(rows)
		}
		args := make([]interface{}, 0, (chunkEnd-chunkStart)*len(columns))
		for i, r := range rows[chunkStart:chunkEnd] {
			if len(r) != len(columns) {
				return chunkStart, fmt.Errorf("inserting row %d: expected %d values, got %d", chunkStart+i, len(columns), len(r))
			}
			args = append(args, r...)
		}
		stmt := insertStmtStart + a.values(chunkEnd-chunkStart, len(columns))
		if err := a.exec(ctx, stmt, fmt.Sprintf("insert of %d samples", chunkEnd-chunkStart), args...); err != nil {
			return chunkStart, err
		}
	}
	return len(rows), nil
}

func (a *adapter) IterateOnRows(ctx context.Context, discreteColumns, continuousColumns []string, lambda func(int, []interface{}) (bool, error)) error {
	columns := append(append([]string{}, discreteColumns...), continuousColumns...)
	query := fmt.Sprintf(`SELECT "%s" FROM samples ORDER BY "id"`, strings.Join(columns, `", "`))
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for j := 0; rows.Next(); j++ {
		discreteValues := make([]sql.NullInt64, len(discreteColumns))
		continuousValues := make([]sql.NullFloat64, len(continuousColumns))
		dest := make([]interface{}, 0, len(columns))
		for i := range discreteValues {
			dest = append(dest, &discreteValues[i])
		}
		for i := range continuousValues {
			dest = append(dest, &continuousValues[i])
		}
		if err = rows.Scan(dest...); err != nil {
			return err
		}
		values := make([]interface{}, len(columns))
		for i, v := range discreteValues {
			if v.Valid {
				values[i] = int(v.Int64)
			}
		}
		for i, v := range continuousValues {
			if v.Valid {
				values[len(discreteColumns)+i] = v.Float64
			}
		}
		ok, err := lambda(j, values)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return rows.Err()
}

func (a *adapter) CountRows(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&count)
	return count, err
}

func (a *adapter) Close() error {
	return a.db.Close()
}
