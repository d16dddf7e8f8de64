package engine

import "context"

// LinkInput is the document a federation link policy is evaluated against.
type LinkInput struct {
	User   LinkUser   `json:"user"`
	Claims LinkClaims `json:"claims"`
}

// LinkUser describes the existing account a federated identity would be linked to.
type LinkUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	AuthProvider string `json:"auth_provider"`
	HasPassword  bool   `json:"has_password"`
}

// LinkClaims are the provider-verified claims of the federated identity.
type LinkClaims struct {
	Subject       string `json:"subject"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// LinkEvaluator decides whether a federated identity may be linked to an existing account.
type LinkEvaluator interface {
	AllowLink(ctx context.Context, in LinkInput) (bool, error)
}
