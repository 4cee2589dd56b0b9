/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/

// Package crypto is a thin facade over Cloud KMS. It assembles plaintext,
// resolves the key resource name through a secret resolver, calls the remote
// encrypt/decrypt endpoint and normalizes every failure into one structured
// log entry plus an absent result. All cryptography except a single HMAC is
// delegated to the key service.
package crypto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bumikpro/google-kms-encryption/secrets"
	log "github.com/sirupsen/logrus"
)

// Operation tags used in failure log entries. Monitoring keys on these, so
// EncryptUserData keeps logging its client-construction failures under
// Encryption rather than Initialization.
const (
	tagInitialization = "Initialization"
	tagEncryption     = "Encryption"
	tagDecryption     = "Decryption"
)

// ErrorRecorder receives every failure the facade swallows. The default
// implementation writes one logrus entry; hosts can inject their own.
type ErrorRecorder interface {
	RecordError(operation string, message string)
}

type logRecorder struct{}

func (logRecorder) RecordError(operation string, message string) {
	log.WithFields(log.Fields{
		"operation": operation,
		"message":   message,
	}).Error("kms operation failed")
}

// ClientFactory constructs the remote key service client from the opaque
// credentials value.
type ClientFactory func(ctx context.Context, credentials string) (KeyServiceClient, error)

// Encryptor is the encryption facade. The remote client is constructed
// lazily on first use under a lock; a failed construction leaves the handle
// absent so the next call retries. Once constructed the client is reused for
// the lifetime of the Encryptor and is safe for concurrent calls.
type Encryptor struct {
	resolver  secrets.Resolver
	recorder  ErrorRecorder
	newClient ClientFactory

	mu     sync.Mutex
	client KeyServiceClient

	now   func() time.Time
	nonce func() (int64, error)
}

// Option configures an Encryptor.
type Option func(*Encryptor)

// WithErrorRecorder replaces the default logrus failure recorder.
func WithErrorRecorder(recorder ErrorRecorder) Option {
	return func(e *Encryptor) { e.recorder = recorder }
}

// WithClientFactory replaces the Cloud KMS client constructor.
func WithClientFactory(factory ClientFactory) Option {
	return func(e *Encryptor) { e.newClient = factory }
}

// NewEncryptor builds a facade around the given secret resolver.
func NewEncryptor(resolver secrets.Resolver, opts ...Option) *Encryptor {
	e := &Encryptor{
		resolver:  resolver,
		recorder:  logRecorder{},
		newClient: NewGoogleKeyServiceClient,
		now:       time.Now,
		nonce:     randomNonce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the remote client if one was ever constructed.
func (e *Encryptor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// EncryptToken derives a fresh HMAC token from data and encrypts it with the
// KMS key. The token embeds a timestamp and a random nonce, so encrypting
// the same data twice yields different ciphertexts. Returns the base64
// ciphertext, or ok=false after logging the failure.
func (e *Encryptor) EncryptToken(ctx context.Context, data any) (ciphertext string, ok bool) {
	client, err := e.ensureClient(ctx)
	if err != nil {
		return e.fail(tagInitialization, err)
	}
	token, err := e.deriveToken(ctx, fmt.Sprint(data))
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	return e.encrypt(ctx, client, []byte(token))
}

// EncryptUserData encrypts a caller-supplied value with the KMS key. Strings
// go through verbatim; anything else is serialized to JSON first. Returns
// the base64 ciphertext, or ok=false after logging the failure.
func (e *Encryptor) EncryptUserData(ctx context.Context, data any) (ciphertext string, ok bool) {
	client, err := e.ensureClient(ctx)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	plaintext, err := userDataPlaintext(data)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	return e.encrypt(ctx, client, plaintext)
}

// DecryptToken decodes the base64 ciphertext and decrypts it with the KMS
// key. The decode is strict: malformed input fails the call rather than
// being repaired. Returns the plaintext, or ok=false after logging the
// failure.
func (e *Encryptor) DecryptToken(ctx context.Context, ciphertext string) (plaintext string, ok bool) {
	client, err := e.ensureClient(ctx)
	if err != nil {
		return e.fail(tagDecryption, err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return e.fail(tagDecryption, fmt.Errorf("error decoding ciphertext: %v", err))
	}
	resourceName, err := e.resolveKeyResourceName(ctx)
	if err != nil {
		return e.fail(tagDecryption, err)
	}
	decrypted, err := client.Decrypt(ctx, resourceName, raw)
	if err != nil {
		return e.fail(tagDecryption, err)
	}
	return string(decrypted), true
}

// encrypt resolves the key resource name, runs the remote encrypt call and
// base64-encodes the result. Shared tail of both encrypt operations.
func (e *Encryptor) encrypt(ctx context.Context, client KeyServiceClient, plaintext []byte) (string, bool) {
	resourceName, err := e.resolveKeyResourceName(ctx)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	encrypted, err := client.Encrypt(ctx, resourceName, plaintext)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), true
}

// ensureClient returns the remote client, constructing it on first use.
// Guarded so concurrent first calls cannot race to build duplicate clients.
func (e *Encryptor) ensureClient(ctx context.Context) (KeyServiceClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	credentials, err := e.resolver.Get(ctx, secrets.NameCredentials)
	if err != nil {
		return nil, err
	}
	client, err := e.newClient(ctx, credentials)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

// resolveKeyResourceName fetches and validates the keyring descriptor. It is
// resolved on every call so a corrected descriptor takes effect immediately.
func (e *Encryptor) resolveKeyResourceName(ctx context.Context) (string, error) {
	raw, err := e.resolver.Get(ctx, secrets.NameKeyRing)
	if err != nil {
		return "", err
	}
	desc, err := ParseKeyRingDescriptor(raw)
	if err != nil {
		return "", err
	}
	return desc.ResourceName(), nil
}

func (e *Encryptor) deriveToken(ctx context.Context, data string) (string, error) {
	appSecret, err := e.resolver.Get(ctx, secrets.NameAppSecret)
	if err != nil {
		return "", err
	}
	nonce, err := e.nonce()
	if err != nil {
		return "", err
	}
	return deriveToken(data, appSecret, e.now(), nonce), nil
}

// userDataPlaintext turns the EncryptUserData argument into plaintext bytes.
func userDataPlaintext(data any) ([]byte, error) {
	if s, isString := data.(string); isString {
		return []byte(s), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error serializing user data: %v", err)
	}
	return raw, nil
}

// fail is the single exit funnel for every failure path: one structured log
// entry, absent result.
func (e *Encryptor) fail(operation string, err error) (string, bool) {
	e.recorder.RecordError(operation, err.Error())
	return "", false
}
