package testsupport

import (
	"net/http/httptest"
	"testing"

	"drowsy/internal/config"
	"drowsy/internal/history"
	"drowsy/internal/mockservice"
)

// MustOpenHistory opens the config's history store and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StartMockService serves a mock detection service for the test and returns
// it along with the base URL to configure.
func StartMockService(t testing.TB, opts mockservice.Options) (*mockservice.Server, string) {
	t.Helper()

	mock := mockservice.New(opts)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)
	return mock, srv.URL + "/api"
}
