package contentforge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/contentforge/ai"
	"github.com/poiesic/contentforge/ai/mock"
	"github.com/poiesic/contentforge/core"
	"github.com/poiesic/contentforge/pipeline"
	"github.com/poiesic/contentforge/storage"
)

// Three paragraphs sized so each becomes exactly one fragment under the
// chunk parameters used below.
const gearDocument = `Alpine tents must shed wind and rain. Pole geometry drives their stability.

Down sleeping bags loft better when dry. Synthetic fill insulates even when soaked.

Canister stoves simmer well in calm air. Liquid fuel wins in deep cold and altitude.`

func newTestService(t *testing.T) (*Service, *mock.MockProvider) {
	t.Helper()

	provider := mock.NewMockProvider().(*mock.MockProvider)
	service, err := NewService("",
		WithInMemory(),
		WithProvider(provider),
		WithSweepInterval(time.Minute),
		WithPipelineOptions(
			pipeline.WithChunking(110, 20),
			pipeline.WithPollInterval(10*time.Millisecond),
			pipeline.WithEmbedRate(1000, 100),
		),
	)
	require.NoError(t, err)
	require.NoError(t, service.Start())
	t.Cleanup(func() { service.Close() })

	return service, provider
}

func awaitJob(t *testing.T, service *Service, jobId string) *core.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := service.JobStatus(context.Background(), jobId)
		require.NoError(t, err)
		if job.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status", jobId)
	return nil
}

func TestServiceEndToEnd(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	jobId, err := service.SubmitIngest(ctx, gearDocument, "doc-gear")
	require.NoError(t, err)
	ingest := awaitJob(t, service, jobId)
	require.Equal(t, core.JobSucceeded, ingest.Status, "ingest failed: %s", ingest.ErrorMessage)

	fragments, err := service.FragmentRepository().GetFragmentsBySource(ctx, "doc-gear")
	require.NoError(t, err)
	require.Len(t, fragments, 3, "one fragment per paragraph")
	for i, fragment := range fragments {
		assert.Equal(t, i, fragment.PositionIndex)
		assert.NotEmpty(t, fragment.Vector)
	}

	jobId, err = service.SubmitQuery(ctx, "how do tents handle wind")
	require.NoError(t, err)
	first := awaitJob(t, service, jobId)
	require.Equal(t, core.JobSucceeded, first.Status, "query failed: %s", first.ErrorMessage)

	response, err := service.QueryResult(ctx, jobId)
	require.NoError(t, err)
	assert.False(t, response.FromCache)
	assert.NotEmpty(t, response.Content)
	assert.Positive(t, response.WordCount)
	assert.NotEmpty(t, response.SourceFragmentIds)

	t.Run("identical query is served from cache", func(t *testing.T) {
		jobId, err := service.SubmitQuery(ctx, "how do tents handle wind")
		require.NoError(t, err)
		second := awaitJob(t, service, jobId)
		require.Equal(t, core.JobSucceeded, second.Status)

		cached, err := service.QueryResult(ctx, jobId)
		require.NoError(t, err)
		assert.True(t, cached.FromCache)
		assert.Equal(t, response.Content, cached.Content)
		assert.Equal(t, response.SourceFragmentIds, cached.SourceFragmentIds)
	})
}

func TestServiceProductRecommendations(t *testing.T) {
	service, provider := newTestService(t)
	ctx := context.Background()

	require.NoError(t, service.SeedProducts(ctx,
		&core.Product{Id: 101, Name: "Storm Tent", Category: "Shelter", Tags: []string{"alpine"}},
		&core.Product{Id: 102, Name: "Winter Bag", Category: "Sleep", Tags: []string{"down"}},
	))

	provider.GetMockRecommender().RecommendFunc = func(ctx context.Context, content string) ([]ai.RankedProduct, error) {
		return []ai.RankedProduct{
			{Id: 101, Name: "Storm Tent", Category: "Shelter"},
			{Id: 102, Name: "Winter Bag", Category: "Sleep"},
		}, nil
	}

	jobId, err := service.SubmitIngest(ctx, gearDocument, "doc-gear")
	require.NoError(t, err)
	require.Equal(t, core.JobSucceeded, awaitJob(t, service, jobId).Status)

	jobId, err = service.SubmitQuery(ctx, "what shelter works in storms")
	require.NoError(t, err)
	require.Equal(t, core.JobSucceeded, awaitJob(t, service, jobId).Status)

	response, err := service.QueryResult(ctx, jobId)
	require.NoError(t, err)
	require.Len(t, response.Products, 2)
	assert.Equal(t, core.ID(101), response.Products[0].Id)
	assert.Equal(t, "Storm Tent", response.Products[0].Name)
	assert.Equal(t, "Shelter", response.Products[0].Category)
}

func TestServiceQueryResultValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		_, err := service.QueryResult(ctx, "no-such-job")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ingest job has no query result", func(t *testing.T) {
		jobId, err := service.SubmitIngest(ctx, gearDocument, "doc-gear")
		require.NoError(t, err)
		require.Equal(t, core.JobSucceeded, awaitJob(t, service, jobId).Status)

		_, err = service.QueryResult(ctx, jobId)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}
