package docsource

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenEndpoint = "https://oauth2.googleapis.com/token"
	defaultDriveBaseURL  = "https://www.googleapis.com/drive/v3"
	driveScopes          = "https://www.googleapis.com/auth/documents.readonly https://www.googleapis.com/auth/drive.readonly"
	docMimeType          = "application/vnd.google-apps.document"
	folderMimeType       = "application/vnd.google-apps.folder"
	maxFolderDepth       = 5
	maxResponseBytes     = 16 << 20
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// CloudClient 通过服务账号访问云端文档服务，凭据从站点配置动态读取。
type CloudClient struct {
	creds CredentialSource
	http  httpDoer

	tokenEndpoint string
	driveBaseURL  string

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewCloudClient 创建云端文档客户端。
func NewCloudClient(creds CredentialSource) *CloudClient {
	return &CloudClient{
		creds:         creds,
		http:          &http.Client{Timeout: 60 * time.Second},
		tokenEndpoint: defaultTokenEndpoint,
		driveBaseURL:  defaultDriveBaseURL,
	}
}

// SetHTTPClient 注入自定义 HTTP 客户端，nil 恢复默认。
func (c *CloudClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
		return
	}
	c.http = client
}

// SetBaseURL 覆盖接口地址，供测试与私有化部署。
func (c *CloudClient) SetBaseURL(base string) {
	c.driveBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// SetTokenEndpoint 覆盖令牌端点并作废已缓存的令牌。
func (c *CloudClient) SetTokenEndpoint(endpoint string) {
	c.tokenEndpoint = strings.TrimSpace(endpoint)
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

// Fetch 导出一份云端文档为 HTML。
func (c *CloudClient) Fetch(ctx context.Context, docID string) (*Document, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, ErrInvalidSourceURL
	}

	name, err := c.fileName(ctx, docID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/files/%s/export?mimeType=%s", c.driveBaseURL, url.PathEscape(docID), url.QueryEscape("text/html"))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Document{ID: docID, Title: name, HTML: string(body)}, nil
}

// ListFolder 递归清点文件夹下的全部文档，深度受限。
func (c *CloudClient) ListFolder(ctx context.Context, folderID string) (*Folder, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, ErrInvalidSourceURL
	}

	name, err := c.fileName(ctx, folderID)
	if err != nil {
		return nil, err
	}

	folder := &Folder{ID: folderID, Name: name}
	if err := c.walkFolder(ctx, folderID, nil, 0, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (c *CloudClient) walkFolder(ctx context.Context, folderID string, path []string, depth int, out *Folder) error {
	if depth > maxFolderDepth {
		return nil
	}

	pageToken := ""
	for {
		query := url.Values{}
		query.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		query.Set("fields", "nextPageToken, files(id, name, mimeType)")
		query.Set("pageSize", "100")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		body, err := c.get(ctx, c.driveBaseURL+"/files?"+query.Encode())
		if err != nil {
			return err
		}

		var page struct {
			NextPageToken string `json:"nextPageToken"`
			Files         []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				MimeType string `json:"mimeType"`
			} `json:"files"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("解析文件夹清单失败: %w", err)
		}

		for _, file := range page.Files {
			switch file.MimeType {
			case docMimeType:
				out.Documents = append(out.Documents, FolderDocument{
					ID:         file.ID,
					Name:       file.Name,
					FolderPath: append([]string(nil), path...),
				})
			case folderMimeType:
				sub := append(append([]string(nil), path...), file.Name)
				if err := c.walkFolder(ctx, file.ID, sub, depth+1, out); err != nil {
					return err
				}
			}
		}

		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *CloudClient) fileName(ctx context.Context, fileID string) (string, error) {
	endpoint := fmt.Sprintf("%s/files/%s?fields=%s", c.driveBaseURL, url.PathEscape(fileID), url.QueryEscape("id, name, mimeType"))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("解析文件元数据失败: %w", err)
	}
	return meta.Name, nil
}

func (c *CloudClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求文档服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("读取文档服务响应失败: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, ErrDocumentNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("文档服务返回错误：%s", msg)
	}
	return body, nil
}

// accessToken 用服务账号签发的 JWT 换取访问令牌，带过期缓存。
func (c *CloudClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	raw, err := c.creds.Credential()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrNotConfigured
	}

	var key serviceAccountKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return "", fmt.Errorf("解析服务账号凭据失败: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return "", ErrNotConfigured
	}

	privateKey, err := parseRSAPrivateKey(key.PrivateKey)
	if err != nil {
		return "", err
	}

	tokenURI := strings.TrimSpace(key.TokenURI)
	if c.tokenEndpoint != defaultTokenEndpoint {
		tokenURI = c.tokenEndpoint
	} else if tokenURI == "" {
		tokenURI = defaultTokenEndpoint
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": driveScopes,
		"aud":   tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("签发服务账号断言失败: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("创建令牌请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求令牌端点失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("读取令牌响应失败: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("令牌端点返回错误：%s", msg)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("解析令牌响应失败: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("令牌端点未返回访问令牌")
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	c.mu.Lock()
	c.token = tokenResp.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(expiresIn-60) * time.Second)
	c.mu.Unlock()
	return tokenResp.AccessToken, nil
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("服务账号私钥不是合法的 PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("服务账号私钥不是 RSA 密钥")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("解析服务账号私钥失败: %w", err)
	}
	return key, nil
}
