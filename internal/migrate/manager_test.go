package migrate

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"estatehub.org/ops/migrations"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- tenants; with a semicolon in a comment
create table t (id text);
insert into t values ('a;b'), ('don''t');

`
	got := splitStatements(sql)
	require.Len(t, got, 2)
	assert.Equal(t, "create table t (id text)", got[0])
	assert.Equal(t, "insert into t values ('a;b'), ('don''t')", got[1])
}

func TestCollectSQLSkipsDownFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.up.sql":   {Data: []byte("select 2;")},
		"0001_a.up.sql":   {Data: []byte("select 1;")},
		"0001_a.down.sql": {Data: []byte("select 0;")},
		"notes.txt":       {Data: []byte("ignore")},
	}
	up, err := collectSQL(fsys, upSuffix)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, up)

	seeds, err := collectSQL(fsys, ".sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, seeds)
}

func TestEmbeddedSchemaPairs(t *testing.T) {
	ups, err := collectSQL(migrations.Schema(), upSuffix)
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	downs, err := collectSQL(migrations.Schema(), downSuffix)
	require.NoError(t, err)
	assert.Len(t, downs, len(ups), "every migration needs a down file")

	seeds, err := collectSQL(migrations.Seeds(), ".sql")
	require.NoError(t, err)
	assert.NotEmpty(t, seeds)
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.up.sql": {Data: []byte("create table a (id text);")},
		"0002_b.up.sql": {Data: []byte("create table b (id text); create index b_idx on b (id);")},
	}
	mgr := NewManager(db, fsys, nil, WithLogger(zap.NewNop()))

	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("select name from schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table b (id text)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create index b_idx on b (id)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations (name) values ($1)")).
		WithArgs("0002_b.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, mgr.Up(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (id text);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
	}
	mgr := NewManager(db, fsys, nil, WithLogger(zap.NewNop()))

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("delete from schema_migrations where name = $1")).
		WithArgs("0001_a.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, mgr.Down(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	err = NewManager(db, fstest.MapFS{}, nil, WithLogger(zap.NewNop())).Down(context.Background())
	require.ErrorIs(t, err, ErrNothingApplied)
}
