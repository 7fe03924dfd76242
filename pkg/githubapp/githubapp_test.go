package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/google/go-github/v71/github"
)

// testClient returns a Client whose factories all point at the given test
// server, bypassing app authentication.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	assert.NoError(t, err)
	gh.BaseURL = base

	c, err := NewClient(Config{AppID: 1, RequestsPerSecond: 1000, Burst: 1000})
	assert.NoError(t, err)
	c.installationFactory = func(int64) (*github.Client, error) { return gh, nil }
	c.appsFactory = func() (*github.Client, error) { return gh, nil }
	return c
}

func TestListAccessibleRepositories(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("GET /installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		page := r.URL.Query().Get("page")
		if page == "" || page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/installation/repositories?page=2>; rel="next"`, srv.URL))
			fmt.Fprint(w, `{"total_count":2,"repositories":[{"id":1,"name":"api","full_name":"acme/api","html_url":"https://github.com/acme/api","private":true,"owner":{"login":"acme"}}]}`)
			return
		}
		fmt.Fprint(w, `{"total_count":2,"repositories":[{"id":2,"name":"web","full_name":"acme/web","html_url":"https://github.com/acme/web","private":false,"owner":{"login":"acme"}}]}`)
	})

	c := testClient(t, srv)
	repos, err := c.ListAccessibleRepositories(context.Background(), 99)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(repos))
	assert.Equal(t, "acme/api", repos[0].FullName)
	assert.Equal(t, "acme", repos[0].Owner)
	assert.True(t, repos[0].Private)
	assert.Equal(t, int64(2), repos[1].ID)
}

func TestGetRepositoryPublicKey(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("GET /repos/acme/api/actions/secrets/public-key", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"key_id":"568250167242549743","key":"dGVzdC1rZXk="}`)
	})

	c := testClient(t, srv)
	key, err := c.GetRepositoryPublicKey(context.Background(), 99, "acme", "api")
	assert.NoError(t, err)
	assert.Equal(t, "568250167242549743", key.KeyID)
	assert.Equal(t, "dGVzdC1rZXk=", key.Key)
}

func TestIssueAccessToken(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /app/installations/99/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token":"ghs_abc123","expires_at":"2026-09-01T12:00:00Z"}`)
	})

	c := testClient(t, srv)
	token, err := c.IssueAccessToken(context.Background(), 99)
	assert.NoError(t, err)
	assert.Equal(t, "ghs_abc123", token.Token)
	assert.Equal(t, 12, token.ExpiresAt.Hour())
	assert.Equal(t, "UTC", token.ExpiresAt.Location().String())
}

func TestIssueAccessTokenAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /app/installations/99/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	})

	c := testClient(t, srv)
	_, err := c.IssueAccessToken(context.Background(), 99)
	assert.IsError(t, err, ErrProviderAuth)
}

func TestPutSecret(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var gotBody string
	mux.HandleFunc("PUT /repos/acme/api/actions/secrets/DATABASE_URL", func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusCreated)
	})

	c := testClient(t, srv)
	err := c.PutSecret(context.Background(), 99, "acme", "api", "DATABASE_URL", "c2VhbGVk", "568250167242549743")
	assert.NoError(t, err)
	assert.Contains(t, gotBody, `"encrypted_value":"c2VhbGVk"`)
	assert.Contains(t, gotBody, `"key_id":"568250167242549743"`)
}

func TestFindOrganizationInstallation(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("GET /orgs/acme/installation", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":99}`)
	})

	c := testClient(t, srv)
	id, err := c.FindOrganizationInstallation(context.Background(), "acme")
	assert.NoError(t, err)
	assert.Equal(t, int64(99), id)
}

func TestProviderCreate(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("GET /repositories/42", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":42,"name":"api","full_name":"acme/api","owner":{"login":"acme"}}`)
	})
	mux.HandleFunc("GET /repos/acme/api/actions/secrets/public-key", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"key_id":"kid-1","key":"cmVwby1rZXk="}`)
	})

	c := testClient(t, srv)
	p := NewProvider(c, 99, nil)
	rec, err := p.Create(context.Background(), "proj-1", 42)
	assert.NoError(t, err)
	assert.NotEqual(t, "", rec.ID.String())
	assert.Equal(t, int64(42), rec.RepositoryID)
	assert.Equal(t, "acme", rec.RepositoryOwner)
	assert.Equal(t, "api", rec.RepositoryName)
	assert.Equal(t, "kid-1", rec.RepositoryPublicKeyID)
	assert.Equal(t, "cmVwby1rZXk=", rec.RepositoryPublicKey)
	assert.Equal(t, int64(99), rec.InstallationID)
}
