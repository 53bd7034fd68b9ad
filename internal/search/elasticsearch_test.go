package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c010r/backyardbarpass/internal/config"
	"github.com/c010r/backyardbarpass/internal/models"
)

func fakeCluster(t *testing.T, searchBody *map[string]any, indexed *eventDocument) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/events":
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			if searchBody != nil {
				raw, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(raw, searchBody)
			}
			_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":7}},{"_source":{"id":3}}]}}`))
		case strings.HasPrefix(r.URL.Path, "/events/_doc/"):
			if indexed != nil {
				_ = json.NewDecoder(r.Body).Decode(indexed)
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
}

func newTestClient(t *testing.T, url string) *ElasticsearchClient {
	t.Helper()
	client, err := NewElasticsearchClient(config.ElasticsearchConfig{
		URL:     url,
		Index:   "events",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestSearchReturnsIDsInHitOrder(t *testing.T) {
	var body map[string]any
	srv := fakeCluster(t, &body, nil)
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ids, err := client.Search(context.Background(), "fiesta", true, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 3}, ids)

	assert.EqualValues(t, 10, body["size"])
	query := body["query"].(map[string]any)
	assert.Contains(t, query, "bool")
}

func TestIndexEventSendsSearchableFields(t *testing.T) {
	var doc eventDocument
	srv := fakeCluster(t, nil, &doc)
	defer srv.Close()

	desc := "Noche de vinilos"
	client := newTestClient(t, srv.URL)
	err := client.IndexEvent(context.Background(), &models.Event{
		ID:          5,
		Title:       "Backyard Sessions",
		Description: &desc,
		Location:    "Montevideo",
		Active:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), doc.ID)
	assert.Equal(t, "Noche de vinilos", doc.Description)
	assert.True(t, doc.Active)
}

func TestBuildSearchQueryMatchAll(t *testing.T) {
	q := buildSearchQuery("", false)
	assert.Contains(t, q, "match_all")
}
