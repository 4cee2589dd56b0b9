/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	gcpkms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// KeyServiceClient is the remote key service capability. Keys never leave
// the service; the client only moves plaintext and ciphertext bytes.
type KeyServiceClient interface {
	Encrypt(ctx context.Context, resourceName string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, resourceName string, ciphertext []byte) ([]byte, error)
	Close() error
}

type googleKeyServiceClient struct {
	client *gcpkms.KeyManagementClient
}

// NewGoogleKeyServiceClient builds a Cloud KMS client from the opaque
// credentials value held by the secret resolver. The value is either a
// service-account file path, a service-account JSON blob, or an OAuth2
// access token.
func NewGoogleKeyServiceClient(ctx context.Context, credentials string) (KeyServiceClient, error) {
	client, err := gcpkms.NewKeyManagementClient(ctx, credentialOption(credentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS client: %v", err)
	}
	return &googleKeyServiceClient{client: client}, nil
}

const (
	credentialFormFile  = "file"
	credentialFormJSON  = "json"
	credentialFormToken = "token"
)

// credentialForm classifies the opaque credential value. A readable path
// wins, then a JSON blob, then a bearer access token.
func credentialForm(credentials string) string {
	if _, err := os.Stat(credentials); err == nil {
		return credentialFormFile
	}
	if json.Valid([]byte(credentials)) {
		return credentialFormJSON
	}
	return credentialFormToken
}

func credentialOption(credentials string) option.ClientOption {
	switch credentialForm(credentials) {
	case credentialFormFile:
		log.Debugf("using credentials file %v", credentials)
		return option.WithCredentialsFile(credentials)
	case credentialFormJSON:
		log.Debug("using inline JSON credentials")
		return option.WithCredentialsJSON([]byte(credentials))
	default:
		log.Debug("using static access token credentials")
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credentials})
		return option.WithTokenSource(tokenSource)
	}
}

func (g *googleKeyServiceClient) Encrypt(ctx context.Context, resourceName string, plaintext []byte) ([]byte, error) {
	resp, err := g.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      resourceName,
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("error encrypting data: %v", err)
	}
	return resp.Ciphertext, nil
}

func (g *googleKeyServiceClient) Decrypt(ctx context.Context, resourceName string, ciphertext []byte) ([]byte, error) {
	resp, err := g.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       resourceName,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("error decrypting data: %v", err)
	}
	return resp.Plaintext, nil
}

func (g *googleKeyServiceClient) Close() error {
	return g.client.Close()
}
