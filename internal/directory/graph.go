// Package directory integrates the account workflow with the corporate
// directory: Microsoft Graph on the Active Directory side and AWS IAM
// Identity Center on the AWS side. Groups referenced by a request must
// already exist in the directory; this package never creates them.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphCredentials hold the app registration used for client-credential
// authentication against Microsoft Graph.
type GraphCredentials struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// SecretsAPI is the subset of the Secrets Manager client used to load
// Graph credentials.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadGraphCredentials reads the Graph app registration from Secrets
// Manager.
func LoadGraphCredentials(ctx context.Context, sm SecretsAPI, secretID string) (GraphCredentials, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return GraphCredentials{}, fmt.Errorf("get graph credentials secret: %w", err)
	}
	var creds GraphCredentials
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &creds); err != nil {
		return GraphCredentials{}, fmt.Errorf("decode graph credentials secret: %w", err)
	}
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return GraphCredentials{}, fmt.Errorf("graph credentials secret is incomplete")
	}
	return creds, nil
}

// GroupNotFoundError reports a directory group that does not exist. Groups
// are owned by the directory team, so absence is a caller mistake, not a
// propagation delay.
type GroupNotFoundError struct {
	Name string
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("directory group %q not found", e.Name)
}

// Group is a directory group as known to Microsoft Graph.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"displayName"`
}

// GraphClient calls Microsoft Graph with client-credential tokens.
type GraphClient struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	creds      GraphCredentials

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewGraphClient creates a GraphClient for the given app registration.
func NewGraphClient(creds GraphCredentials) *GraphClient {
	return &GraphClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    graphBaseURL,
		tokenURL:   fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", creds.TenantID),
		creds:      creds,
	}
}

func (c *GraphClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch graph token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("fetch graph token: status %d: %s", resp.StatusCode, string(body))
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode graph token: %w", err)
	}
	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return c.token, nil
}

func (c *GraphClient) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal graph request: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// GroupByName looks up a directory group by display name.
func (c *GraphClient) GroupByName(ctx context.Context, name string) (Group, error) {
	path := "/groups?$filter=" + url.QueryEscape(fmt.Sprintf("displayName eq '%s'", name))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Group{}, fmt.Errorf("lookup group %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Group{}, fmt.Errorf("lookup group %s: status %d: %s", name, resp.StatusCode, string(body))
	}

	var result struct {
		Value []Group `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Group{}, fmt.Errorf("decode group lookup: %w", err)
	}
	if len(result.Value) == 0 {
		return Group{}, &GroupNotFoundError{Name: name}
	}
	return result.Value[0], nil
}

// AssignGroupToApp adds a group to the enterprise application that feeds
// Identity Center provisioning. An assignment that already exists is not
// an error.
func (c *GraphClient) AssignGroupToApp(ctx context.Context, groupID, servicePrincipalID, appRoleID string) error {
	payload := map[string]string{
		"principalId": groupID,
		"resourceId":  servicePrincipalID,
		"appRoleId":   appRoleID,
	}
	path := fmt.Sprintf("/servicePrincipals/%s/appRoleAssignedTo", servicePrincipalID)
	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return fmt.Errorf("assign group %s to app: %w", groupID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(body), "already exists") {
			return nil
		}
		return fmt.Errorf("assign group %s to app: status %d: %s", groupID, resp.StatusCode, string(body))
	}
	return nil
}

// StartProvisioningJob kicks the synchronization job that pushes directory
// assignments into Identity Center.
func (c *GraphClient) StartProvisioningJob(ctx context.Context, servicePrincipalID, jobID string) error {
	path := fmt.Sprintf("/servicePrincipals/%s/synchronization/jobs/%s/start", servicePrincipalID, jobID)
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("start provisioning job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("start provisioning job: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
