package pipeline

import (
	"context"
	"errors"
	"testing"

	"docchat-go/internal/apperr"
	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/vectorstore"
	"docchat-go/pkg/events"
	"docchat-go/pkg/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

type stubArchiver struct {
	keys []string
	err  error
}

func (s *stubArchiver) Archive(_ context.Context, ownerID, fileName, _ string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	key := "uploads/" + ownerID + "/" + fileName
	s.keys = append(s.keys, key)
	return key, nil
}

type stubUploads struct {
	records []model.UploadRecord
}

func (s *stubUploads) AutoMigrate() error { return nil }

func (s *stubUploads) Create(_ context.Context, r *model.UploadRecord) error {
	s.records = append(s.records, *r)
	return nil
}

func (s *stubUploads) FindByOwner(context.Context, string) ([]model.UploadRecord, error) {
	return s.records, nil
}

func (s *stubUploads) DeleteByOwner(context.Context, string) (int64, error) { return 0, nil }

type stubPublisher struct {
	events []events.DocumentEvent
}

func (s *stubPublisher) Publish(_ context.Context, e events.DocumentEvent) error {
	s.events = append(s.events, e)
	return nil
}

type fixture struct {
	store     *vectorstore.Store
	embedder  *stubEmbedder
	archiver  *stubArchiver
	uploads   *stubUploads
	publisher *stubPublisher
	processor *Processor
}

func newFixture() *fixture {
	f := &fixture{
		store:     vectorstore.New(vectorstore.NewMemoryBackend(), vectorstore.Options{Dimensions: 2, Threshold: 0.5}),
		embedder:  &stubEmbedder{},
		archiver:  &stubArchiver{},
		uploads:   &stubUploads{},
		publisher: &stubPublisher{},
	}
	f.processor = NewProcessor(extract.New(nil, 0), f.embedder, f.store,
		config.PipelineConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap},
		WithArchiver(f.archiver),
		WithUploadRecords(f.uploads),
		WithPublisher(f.publisher),
	)
	return f
}

func TestIngest_PlainText(t *testing.T) {
	f := newFixture()
	text := sentence(800) + sentence(800) + sentence(800)

	res, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: "notes.txt", Data: []byte(text)})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", res.FileName)
	assert.Equal(t, "txt", res.FileType)
	assert.Equal(t, 3, res.ChunksProcessed)
	assert.Len(t, res.DocumentIDs, 3)

	docs, err := f.store.GetAllDocuments(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	indexes := map[int]bool{}
	for _, d := range docs {
		assert.Equal(t, "notes.txt", d.FileName)
		indexes[d.ChunkIndex] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, indexes)

	assert.Equal(t, []string{"uploads/alice/notes.txt"}, f.archiver.keys)
	require.Len(t, f.uploads.records, 1)
	assert.Equal(t, "uploads/alice/notes.txt", f.uploads.records[0].ObjectKey)
	assert.Equal(t, 3, f.uploads.records[0].ChunkCount)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeDocumentIngested, f.publisher.events[0].Type)
	assert.Equal(t, res.DocumentIDs, f.publisher.events[0].DocumentIDs)
}

func TestIngest_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.processor.Ingest(ctx, IngestRequest{FileName: "a.txt", Data: []byte("hello")})
	assert.True(t, apperr.IsKind(err, apperr.Unauthorized))

	_, err = f.processor.Ingest(ctx, IngestRequest{OwnerID: "alice", FileName: "image.png", Data: []byte("x")})
	assert.True(t, apperr.IsKind(err, apperr.UnsupportedFormat))

	_, err = f.processor.Ingest(ctx, IngestRequest{OwnerID: "alice", FileName: "", Data: []byte("x")})
	assert.True(t, apperr.IsKind(err, apperr.BadInput))

	assert.Zero(t, f.embedder.calls)
	assert.Empty(t, f.archiver.keys)
}

func TestIngest_EmptyDocument(t *testing.T) {
	f := newFixture()
	_, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: "blank.txt", Data: []byte(" \n\t ")})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.EmptyDocument))
	assert.Zero(t, f.embedder.calls)
	assert.Empty(t, f.publisher.events)
}

func TestIngest_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture()
	f.embedder.err = apperr.Wrap(apperr.EmbeddingFailed, errors.New("quota"), "embedding failed")

	_, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: "a.txt", Data: []byte("hello world.")})
	assert.True(t, apperr.IsKind(err, apperr.EmbeddingFailed))

	n, _ := f.store.GetCount(context.Background(), "alice")
	assert.Zero(t, n)
	assert.Empty(t, f.uploads.records)
}

func TestIngest_FailedIngestArchivesNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		file  string
		data  string
		kind  apperr.Kind
	}{
		{"extraction", func(*fixture) {}, "bad.txt", "\xff\xfe", apperr.ExtractionFailed},
		{"empty", func(*fixture) {}, "blank.txt", "  \n ", apperr.EmptyDocument},
		{"embedding", func(f *fixture) { f.embedder.err = errors.New("provider down") }, "a.txt", "hello world.", ""},
		{"storage", func(f *fixture) {
			f.store = vectorstore.New(vectorstore.NewMemoryBackend(), vectorstore.Options{Dimensions: 3, Threshold: 0.5})
			f.processor.store = f.store
		}, "a.txt", "hello world.", apperr.StorageWriteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			_, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: tt.file, Data: []byte(tt.data)})
			require.Error(t, err)
			if tt.kind != "" {
				assert.True(t, apperr.IsKind(err, tt.kind), err.Error())
			}
			assert.Empty(t, f.archiver.keys)
			assert.Empty(t, f.uploads.records)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestIngest_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.archiver.err = errors.New("bucket missing")

	res, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: "a.txt", Data: []byte("hello world.")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksProcessed)
	require.Len(t, f.uploads.records, 1)
	assert.Empty(t, f.uploads.records[0].ObjectKey)
}

func TestIngest_StripsDirectories(t *testing.T) {
	f := newFixture()
	res, err := f.processor.Ingest(context.Background(), IngestRequest{OwnerID: "alice", FileName: "../../secret/a.txt", Data: []byte("hello.")})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", res.FileName)
}
