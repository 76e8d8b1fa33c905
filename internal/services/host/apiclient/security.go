package apiclient

import "context"

// Credential is one permission a group grants.
type Credential struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CredentialsGroup is a named set of permissions.
type CredentialsGroup struct {
	GroupID       string       `json:"group_id"`
	GroupKeyLabel string       `json:"group_key_lang"`
	Credentials   []Credential `json:"credentials"`
}

// AuthenticationService is the security module's authentication client.
type AuthenticationService struct {
	client *Client
}

// NewAuthenticationService returns a service calling through client.
func NewAuthenticationService(client *Client) *AuthenticationService {
	return &AuthenticationService{client: client}
}

// CredentialsGroups lists every permission group known to the backend.
func (s *AuthenticationService) CredentialsGroups(ctx context.Context) ([]CredentialsGroup, error) {
	return GetResult[[]CredentialsGroup](ctx, s.client, "security/credentials")
}
