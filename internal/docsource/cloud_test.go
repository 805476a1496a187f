package docsource

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticCredential string

func (s staticCredential) Credential() (string, error) { return string(s), nil }

func testCredentialJSON(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	cred, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   "kb-test",
		"private_key":  string(pemKey),
		"client_email": "svc@kb-test.example.com",
		"token_uri":    "unused",
	})
	if err != nil {
		t.Fatalf("marshal credential: %v", err)
	}
	return string(cred)
}

func newTestCloudServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("assertion") == "" {
			http.Error(w, "bad assertion", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/files/doc-1/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, "unauthorized", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "<p>exported body</p>")
	})
	mux.HandleFunc("/files/doc-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "doc-1", "name": "Exported Doc"})
	})
	mux.HandleFunc("/files/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/files/folder-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "folder-1", "name": "Root"})
	})
	mux.HandleFunc("/files/sub-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "sub-1", "name": "Sub"})
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "'folder-1'"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"files": []map[string]string{
					{"id": "doc-a", "name": "Alpha", "mimeType": "application/vnd.google-apps.document"},
					{"id": "sub-1", "name": "Sub", "mimeType": "application/vnd.google-apps.folder"},
					{"id": "sheet-1", "name": "Ignored", "mimeType": "application/vnd.google-apps.spreadsheet"},
				},
			})
		case strings.Contains(q, "'sub-1'"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"files": []map[string]string{
					{"id": "doc-b", "name": "Beta", "mimeType": "application/vnd.google-apps.document"},
				},
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"files": []map[string]string{}})
		}
	})

	return httptest.NewServer(mux)
}

func newTestCloudClient(t *testing.T, server *httptest.Server) *CloudClient {
	t.Helper()

	client := NewCloudClient(staticCredential(testCredentialJSON(t)))
	client.SetBaseURL(server.URL)
	client.SetTokenEndpoint(server.URL + "/token")
	return client
}

func TestCloudClientFetch(t *testing.T) {
	server := newTestCloudServer(t)
	defer server.Close()

	client := newTestCloudClient(t, server)
	doc, err := client.Fetch(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if doc.Title != "Exported Doc" {
		t.Errorf("unexpected title %q", doc.Title)
	}
	if doc.HTML != "<p>exported body</p>" {
		t.Errorf("unexpected body %q", doc.HTML)
	}
}

func TestCloudClientFetchMissing(t *testing.T) {
	server := newTestCloudServer(t)
	defer server.Close()

	client := newTestCloudClient(t, server)
	if _, err := client.Fetch(context.Background(), "gone"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestCloudClientListFolderRecurses(t *testing.T) {
	server := newTestCloudServer(t)
	defer server.Close()

	client := newTestCloudClient(t, server)
	folder, err := client.ListFolder(context.Background(), "folder-1")
	if err != nil {
		t.Fatalf("list folder: %v", err)
	}

	if folder.Name != "Root" {
		t.Errorf("unexpected folder name %q", folder.Name)
	}
	if len(folder.Documents) != 2 {
		t.Fatalf("expected 2 documents across levels, got %d", len(folder.Documents))
	}

	byID := map[string]FolderDocument{}
	for _, doc := range folder.Documents {
		byID[doc.ID] = doc
	}
	if len(byID["doc-a"].FolderPath) != 0 {
		t.Errorf("top-level doc must have empty path: %+v", byID["doc-a"])
	}
	if got := byID["doc-b"].FolderPath; len(got) != 1 || got[0] != "Sub" {
		t.Errorf("nested doc must carry folder path: %+v", got)
	}
}

func TestCloudClientRequiresCredential(t *testing.T) {
	client := NewCloudClient(staticCredential(""))
	if _, err := client.Fetch(context.Background(), "doc-1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
