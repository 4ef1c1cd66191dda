package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider/cognitoidentityprovideriface"

	"github.com/pavitra93/go-planning-dashboard/shared/utils"
)

// ErrInvalidCredentials is returned for a wrong username or password
var ErrInvalidCredentials = errors.New("invalid credentials")

// Login is the outcome of a successful credential check
type Login struct {
	AccessToken string
	Subject     string
	Email       string
	Name        string
	Picture     string
	ExpiresIn   int64
}

// Authenticator checks credentials with the identity provider
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (Login, error)
}

// IDTokenVerifier verifies the ID token returned by the identity provider
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token, clientID string) (*utils.IDTokenClaims, error)
}

// CognitoAuthenticator runs USER_PASSWORD_AUTH against a Cognito app client
type CognitoAuthenticator struct {
	client       cognitoidentityprovideriface.CognitoIdentityProviderAPI
	verifier     IDTokenVerifier
	breaker      *utils.CircuitBreaker
	clientID     string
	clientSecret string
}

func NewCognitoAuthenticator(client cognitoidentityprovideriface.CognitoIdentityProviderAPI, verifier IDTokenVerifier, breaker *utils.CircuitBreaker, clientID, clientSecret string) *CognitoAuthenticator {
	breaker.Countable(func(err error) bool {
		return !errors.Is(err, ErrInvalidCredentials)
	})
	return &CognitoAuthenticator{
		client:       client,
		verifier:     verifier,
		breaker:      breaker,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// secretHash is required when the app client has a secret
func (a *CognitoAuthenticator) secretHash(username string) string {
	if a.clientSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(a.clientSecret))
	mac.Write([]byte(username + a.clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (a *CognitoAuthenticator) Authenticate(ctx context.Context, username, password string) (Login, error) {
	params := map[string]*string{
		"USERNAME": aws.String(username),
		"PASSWORD": aws.String(password),
	}
	if hash := a.secretHash(username); hash != "" {
		params["SECRET_HASH"] = aws.String(hash)
	}

	input := &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow:       aws.String(cognitoidentityprovider.AuthFlowTypeUserPasswordAuth),
		ClientId:       aws.String(a.clientID),
		AuthParameters: params,
	}

	var out *cognitoidentityprovider.InitiateAuthOutput
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		var cognitoErr error
		out, cognitoErr = a.client.InitiateAuthWithContext(ctx, input)
		return classifyCognitoError(cognitoErr)
	})
	if err != nil {
		return Login{}, err
	}

	result := out.AuthenticationResult
	if result == nil || result.AccessToken == nil || result.IdToken == nil {
		// A challenge (new password, MFA) is not supported by this flow
		return Login{}, ErrInvalidCredentials
	}

	claims, err := a.verifier.VerifyIDToken(ctx, aws.StringValue(result.IdToken), a.clientID)
	if err != nil {
		return Login{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return Login{
		AccessToken: aws.StringValue(result.AccessToken),
		Subject:     claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Picture:     claims.Picture,
		ExpiresIn:   aws.Int64Value(result.ExpiresIn),
	}, nil
}

func classifyCognitoError(err error) error {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case cognitoidentityprovider.ErrCodeNotAuthorizedException,
			cognitoidentityprovider.ErrCodeUserNotFoundException,
			cognitoidentityprovider.ErrCodeUserNotConfirmedException,
			cognitoidentityprovider.ErrCodePasswordResetRequiredException:
			return ErrInvalidCredentials
		}
	}
	return fmt.Errorf("cognito InitiateAuth failed: %w", err)
}
