/*
Package sqlite3adapter provides an implementation of the
Adapter interface in the sqldataset package that works
over SQLite3 database files.
*/
package sqlite3adapter

import (
	"database/sql"

	// Import of sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbanos/grove/dataset/sqldataset"
)

// Dialect is the SQLite3 dialect of sqldataset adapters
var Dialect = sqldataset.Dialect{
	Placeholder: func(int) string { return "?" },
	IDColumn:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	FloatType:   "REAL",
	Setup:       []string{"PRAGMA foreign_keys=ON"},
}

/*
New takes a path to an SQLite3 database file and a limit to the
connections opened on it at a time, 0 meaning no limit, and returns an
Adapter that works on the file's database or an error if it fails to
open as an sqlite3 database.
*/
func New(path string, maxConns int) (sqldataset.Adapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	return sqldataset.NewAdapter(db, Dialect), nil
}
