package shadow

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
)

// Template is the structural master: a zero-row table whose schema is
// cloned to produce every physical partition.
type Template struct {
	Base string
	decl *schema.Declaration
}

// IndexDef describes one index discovered on the template at Copy time,
// so it can be replayed against a freshly-cloned partition with a
// collision-free name.
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

const templatePostfix = "template"

func (t *Template) Postfix() string { return templatePostfix }

func (t *Template) Schema() *schema.Declaration {
	if t.decl == nil {
		t.decl = &schema.Declaration{Name: FullName(t.Base, t)}
	} else {
		t.decl.Name = FullName(t.Base, t)
	}
	return t.decl
}

// CreateTemplate creates the template table with exactly the given user
// columns, the partition column among them. parseCreateArgs has already
// removed the lifetime pseudo-column, so the template has no lifetime
// column.
func CreateTemplate(db *sql.DB, base string, columns []schema.Column) (*Template, error) {
	t := &Template{Base: base, decl: &schema.Declaration{Columns: columns}}
	t.decl.Name = FullName(base, t)
	if err := Create(db, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ConnectTemplate re-reads the template's schema from the host catalog.
func ConnectTemplate(db *sql.DB, base string) (*Template, error) {
	t := &Template{Base: base}
	name := FullName(base, t)
	createSQL, err := readCreateTableSQL(db, name)
	if err != nil {
		return nil, err
	}
	decl, err := parseCreateTable(createSQL)
	if err != nil {
		return nil, err
	}
	t.decl = decl
	return t, nil
}

// Copy clones the template's schema into a brand-new physical partition
// table named newName, then discovers every index actually defined on
// the template (by querying the host catalog, the same way
// readCreateTableSQL discovers a stored table) and replays each one
// against the clone, suffixed by newName to keep names collision-free.
func (t *Template) Copy(db *sql.DB, newName string) error {
	templateName := FullName(t.Base, t)
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s", newName, templateName)
	if _, err := db.Exec(stmt); err != nil {
		return perr.Hostf(err, "cloning template into %q", newName)
	}

	indexes, err := templateIndexes(db, templateName)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		idxName := fmt.Sprintf("%s_%s", idx.Name, newName)
		createIdx := fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, idxName, newName, joinCommas(idx.Columns),
		)
		if _, err := db.Exec(createIdx); err != nil {
			return perr.Hostf(err, "replaying index %q onto %q", idx.Name, newName)
		}
	}
	return nil
}

// templateIndexes reads every user-defined index on tableName from the
// host catalog. SQLite-internal indexes backing a UNIQUE/PRIMARY KEY
// constraint (named "sqlite_autoindex_...") have no stored CREATE INDEX
// text and are skipped; the CREATE TABLE ... AS SELECT clone does not
// carry the constraints behind them either.
func templateIndexes(db *sql.DB, tableName string) ([]IndexDef, error) {
	rows, err := db.Query(`SELECT sql FROM sqlite_schema WHERE type = 'index' AND tbl_name = ?`, tableName)
	if err != nil {
		return nil, perr.Hostf(err, "reading indexes for %q", tableName)
	}
	defer rows.Close()

	var defs []IndexDef
	for rows.Next() {
		var sqlText sql.NullString
		if err := rows.Scan(&sqlText); err != nil {
			return nil, perr.Hostf(err, "reading index row for %q", tableName)
		}
		if !sqlText.Valid {
			continue
		}
		def, err := parseCreateIndex(sqlText.String)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.Hostf(err, "iterating indexes for %q", tableName)
	}
	return defs, nil
}

// parseCreateIndex parses a stored "CREATE [UNIQUE] INDEX <name> ON
// <table> (<cols>)" statement, tolerant of the same things
// parseCreateTable is tolerant of (no attempt to reconstruct column
// sort order/collation, only names).
func parseCreateIndex(createSQL string) (IndexDef, error) {
	open := strings.IndexByte(createSQL, '(')
	close := strings.LastIndexByte(createSQL, ')')
	if open < 0 || close < 0 || close < open {
		return IndexDef{}, perr.Hostf(nil, "malformed CREATE INDEX text: %q", createSQL)
	}

	header := strings.Fields(strings.TrimSpace(createSQL[:open]))
	if len(header) < 4 || !strings.EqualFold(header[0], "CREATE") {
		return IndexDef{}, perr.Hostf(nil, "not a CREATE INDEX statement: %q", createSQL)
	}
	pos := 1
	unique := false
	if strings.EqualFold(header[pos], "UNIQUE") {
		unique = true
		pos++
	}
	if pos >= len(header) || !strings.EqualFold(header[pos], "INDEX") {
		return IndexDef{}, perr.Hostf(nil, "not a CREATE INDEX statement: %q", createSQL)
	}
	pos++
	if pos >= len(header) {
		return IndexDef{}, perr.Hostf(nil, "CREATE INDEX statement missing a name: %q", createSQL)
	}
	name := header[pos]

	body := createSQL[open+1 : close]
	var cols []string
	for _, raw := range splitTopLevel(body) {
		fs := strings.Fields(strings.TrimSpace(raw))
		if len(fs) > 0 {
			cols = append(cols, fs[0])
		}
	}
	return IndexDef{Name: name, Columns: cols, Unique: unique}, nil
}

// UserColumns returns the template's columns, i.e. the schema every
// partition and the user-visible virtual table share.
func (t *Template) UserColumns() []schema.Column {
	return t.Schema().Columns
}
