package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"docchat-go/internal/model"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type capturedSQL struct {
	SQL  string
	Vars []interface{}
}

// newDryRunRepository 返回一个只生成 SQL 不连接数据库的仓库，并记录每条语句和绑定参数。
func newDryRunRepository(t *testing.T) (*chunkRepository, *[]capturedSQL) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=docchat dbname=docchat sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	var captured []capturedSQL
	capture := func(tx *gorm.DB) {
		captured = append(captured, capturedSQL{
			SQL:  tx.Statement.SQL.String(),
			Vars: append([]interface{}(nil), tx.Statement.Vars...),
		})
	}
	cb := db.Callback()
	require.NoError(t, cb.Create().After("gorm:create").Register("test:capture", capture))
	require.NoError(t, cb.Query().After("gorm:query").Register("test:capture", capture))
	require.NoError(t, cb.Delete().After("gorm:delete").Register("test:capture", capture))
	require.NoError(t, cb.Row().After("gorm:row").Register("test:capture", capture))
	require.NoError(t, cb.Raw().After("gorm:raw").Register("test:capture", capture))

	return &chunkRepository{db: db}, &captured
}

func TestMigrationStatements(t *testing.T) {
	stmts := migrationStatements(768, true)
	require.Len(t, stmts, 5)

	assert.Equal(t, "CREATE EXTENSION IF NOT EXISTS vector", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS document_chunks")
	assert.Contains(t, stmts[1], "embedding   vector(768) NOT NULL")
	assert.Contains(t, stmts[1], "owner_id    text NOT NULL")
	assert.Equal(t, widenOwnerColumnSQL, stmts[2])
	assert.Contains(t, stmts[3], "ON document_chunks (owner_id, created_at DESC)")

	fn := stmts[4]
	assert.Contains(t, fn, "query_embedding vector(768)")
	assert.Contains(t, fn, "filter_owner text")
	assert.Contains(t, fn, "WHERE d.owner_id = filter_owner")
	assert.Contains(t, fn, "> match_threshold")
	assert.Contains(t, fn, "LIMIT match_count")
	// 声明为 text 的返回列必须显式转换，否则 varchar 列会让函数创建失败
	assert.Contains(t, fn, "d.id::text")
	assert.Contains(t, fn, "d.file_name::text")
	assert.Contains(t, fn, "d.owner_id::text")

	withoutFn := migrationStatements(3, false)
	require.Len(t, withoutFn, 4)
	for _, stmt := range withoutFn {
		assert.NotContains(t, stmt, "match_documents")
	}
}

func TestMigrate_ExecutesEveryStatement(t *testing.T) {
	repo, captured := newDryRunRepository(t)

	require.NoError(t, repo.Migrate(context.Background(), 3, true))

	want := migrationStatements(3, true)
	require.Len(t, *captured, len(want))
	for i, stmt := range want {
		assert.Equal(t, stmt, (*captured)[i].SQL)
		assert.Empty(t, (*captured)[i].Vars)
	}
}

func TestInsert_SQL(t *testing.T) {
	repo, captured := newDryRunRepository(t)
	chunk := &model.DocumentChunk{
		ID:         "id-1",
		Text:       "hello",
		Embedding:  pgvector.NewVector([]float32{1, 2, 3}),
		FileName:   "a.txt",
		ChunkIndex: 0,
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		OwnerID:    "alice",
	}

	require.NoError(t, repo.Insert(context.Background(), chunk))

	require.Len(t, *captured, 1)
	assert.True(t, strings.HasPrefix((*captured)[0].SQL, `INSERT INTO "document_chunks"`))
	assert.Contains(t, (*captured)[0].Vars, "alice")
	assert.Contains(t, (*captured)[0].Vars, "id-1")
}

func TestListByOwner_SQL(t *testing.T) {
	repo, captured := newDryRunRepository(t)

	_, err := repo.ListByOwner(context.Background(), "alice", 500)
	require.NoError(t, err)
	_, err = repo.ListByOwner(context.Background(), "alice", 0)
	require.NoError(t, err)

	require.Len(t, *captured, 2)
	limited := (*captured)[0]
	assert.Equal(t, `SELECT * FROM "document_chunks" WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, limited.SQL)
	assert.Equal(t, []interface{}{"alice", 500}, limited.Vars)

	all := (*captured)[1]
	assert.Equal(t, `SELECT * FROM "document_chunks" WHERE owner_id = $1 ORDER BY created_at DESC`, all.SQL)
	assert.Equal(t, []interface{}{"alice"}, all.Vars)
}

func TestCountAndDeleteByOwner_SQL(t *testing.T) {
	repo, captured := newDryRunRepository(t)

	_, err := repo.CountByOwner(context.Background(), "alice")
	require.NoError(t, err)
	_, err = repo.DeleteByOwner(context.Background(), "alice")
	require.NoError(t, err)

	require.Len(t, *captured, 2)
	assert.Equal(t, `SELECT count(*) FROM "document_chunks" WHERE owner_id = $1`, (*captured)[0].SQL)
	assert.Equal(t, `DELETE FROM "document_chunks" WHERE owner_id = $1`, (*captured)[1].SQL)
	assert.Equal(t, []interface{}{"alice"}, (*captured)[1].Vars)
}

func TestMatchDocuments_SQL(t *testing.T) {
	repo, captured := newDryRunRepository(t)

	// DryRun 不会返回结果集，这里只关心生成的调用语句和参数顺序
	_, _ = repo.MatchDocuments(context.Background(), []float32{0.1, 0.2}, 0.75, 5, "alice")

	require.Len(t, *captured, 1)
	call := (*captured)[0]
	assert.Equal(t, "SELECT * FROM match_documents($1, $2, $3, $4)", call.SQL)
	require.Len(t, call.Vars, 4)
	assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2}), call.Vars[0])
	assert.Equal(t, 0.75, call.Vars[1])
	assert.Equal(t, 5, call.Vars[2])
	assert.Equal(t, "alice", call.Vars[3])
}

func TestToScoredChunks(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []matchRow{
		{ID: "a", Text: "alpha", FileName: "a.txt", ChunkIndex: 2, CreatedAt: created, OwnerID: "alice", Similarity: 0.91},
		{ID: "b", Text: "beta", FileName: "b.txt", ChunkIndex: 0, CreatedAt: created.Add(time.Second), OwnerID: "alice", Similarity: 0.62},
	}

	results := toScoredChunks(rows)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Text)
	assert.Equal(t, "a.txt", results[0].FileName)
	assert.Equal(t, 2, results[0].ChunkIndex)
	assert.Equal(t, created, results[0].CreatedAt)
	assert.Equal(t, "alice", results[0].OwnerID)
	assert.InDelta(t, 0.91, results[0].Similarity, 1e-9)
	assert.Empty(t, results[0].Vector())
	assert.Equal(t, "b", results[1].ID)

	assert.NotNil(t, toScoredChunks(nil))
	assert.Empty(t, toScoredChunks(nil))
}
