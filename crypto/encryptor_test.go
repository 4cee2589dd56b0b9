package crypto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/bumikpro/google-kms-encryption/secrets"
)

const testKeyRing = `{"project_id":"p1","location":"global","key_ring":"r1","key_name":"k1"}`
const testResourceName = "projects/p1/locations/global/keyRings/r1/cryptoKeys/k1"

func testSecrets() secrets.Static {
	return secrets.Static{
		secrets.NameCredentials: "ya29.test-token",
		secrets.NameKeyRing:     testKeyRing,
		secrets.NameAppSecret:   "app-secret",
	}
}

// MockKeyServiceClient is a mock implementation of the KMS client
type MockKeyServiceClient struct {
	mock.Mock
}

func (m *MockKeyServiceClient) Encrypt(ctx context.Context, resourceName string, plaintext []byte) ([]byte, error) {
	args := m.Called(resourceName, plaintext)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyServiceClient) Decrypt(ctx context.Context, resourceName string, ciphertext []byte) ([]byte, error) {
	args := m.Called(resourceName, ciphertext)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKeyServiceClient) Close() error {
	return nil
}

// identityClient echoes plaintext back as ciphertext so round trips exercise
// plaintext construction and resource-name plumbing without a live backend.
type identityClient struct {
	resourceNames []string
}

func (c *identityClient) Encrypt(_ context.Context, resourceName string, plaintext []byte) ([]byte, error) {
	c.resourceNames = append(c.resourceNames, resourceName)
	return plaintext, nil
}

func (c *identityClient) Decrypt(_ context.Context, resourceName string, ciphertext []byte) ([]byte, error) {
	c.resourceNames = append(c.resourceNames, resourceName)
	return ciphertext, nil
}

func (c *identityClient) Close() error { return nil }

type recordedError struct {
	operation string
	message   string
}

type fakeRecorder struct {
	recorded []recordedError
}

func (r *fakeRecorder) RecordError(operation string, message string) {
	r.recorded = append(r.recorded, recordedError{operation: operation, message: message})
}

func (r *fakeRecorder) operations() []string {
	ops := make([]string, 0, len(r.recorded))
	for _, rec := range r.recorded {
		ops = append(ops, rec.operation)
	}
	return ops
}

func newTestEncryptor(resolver secrets.Resolver, client KeyServiceClient, recorder *fakeRecorder) *Encryptor {
	e := NewEncryptor(resolver,
		WithErrorRecorder(recorder),
		WithClientFactory(func(ctx context.Context, credentials string) (KeyServiceClient, error) {
			return client, nil
		}))
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	e.nonce = func() (int64, error) { return 123456, nil }
	return e
}

func TestEncryptTokenBuildsExpectedPlaintext(t *testing.T) {
	recorder := &fakeRecorder{}
	client := &identityClient{}
	e := newTestEncryptor(testSecrets(), client, recorder)

	ciphertext, ok := e.EncryptToken(context.Background(), 42)
	assert.True(t, ok)
	assert.Empty(t, recorder.recorded)

	expectedToken := deriveToken("42", "app-secret", time.Unix(1700000000, 0), 123456)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(expectedToken)), ciphertext)
	assert.Equal(t, []string{testResourceName}, client.resourceNames)
}

func TestEncryptTokenFreshness(t *testing.T) {
	recorder := &fakeRecorder{}
	e := newTestEncryptor(testSecrets(), &identityClient{}, recorder)

	// simulate the per-call nonce draw
	var nonce int64 = 100000
	e.nonce = func() (int64, error) {
		nonce++
		return nonce, nil
	}

	first, ok := e.EncryptToken(context.Background(), "same-data")
	assert.True(t, ok)
	second, ok := e.EncryptToken(context.Background(), "same-data")
	assert.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestUserDataRoundTrip(t *testing.T) {
	recorder := &fakeRecorder{}
	e := newTestEncryptor(testSecrets(), &identityClient{}, recorder)

	payload := map[string]any{"email": "user@example.com", "id": 7}
	ciphertext, ok := e.EncryptUserData(context.Background(), payload)
	assert.True(t, ok)

	plaintext, ok := e.DecryptToken(context.Background(), ciphertext)
	assert.True(t, ok)

	expected, err := json.Marshal(payload)
	assert.NoError(t, err)
	assert.Equal(t, string(expected), plaintext)
	assert.Empty(t, recorder.recorded)
}

func TestEncryptUserDataStringPassthrough(t *testing.T) {
	recorder := &fakeRecorder{}
	e := newTestEncryptor(testSecrets(), &identityClient{}, recorder)

	ciphertext, ok := e.EncryptUserData(context.Background(), "verbatim plaintext")
	assert.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("verbatim plaintext")), ciphertext)
}

func TestEncryptUserDataSerializationFailure(t *testing.T) {
	recorder := &fakeRecorder{}
	client := &identityClient{}
	e := newTestEncryptor(testSecrets(), client, recorder)

	result, ok := e.EncryptUserData(context.Background(), map[string]any{"bad": make(chan int)})
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, []string{"Encryption"}, recorder.operations())
	assert.Contains(t, recorder.recorded[0].message, "error serializing user data")
	assert.Empty(t, client.resourceNames)
}

func TestDecryptTokenRejectsMalformedBase64(t *testing.T) {
	recorder := &fakeRecorder{}
	client := &identityClient{}
	e := newTestEncryptor(testSecrets(), client, recorder)

	result, ok := e.DecryptToken(context.Background(), "not-base64!!")
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, []string{"Decryption"}, recorder.operations())
	assert.Contains(t, recorder.recorded[0].message, "error decoding ciphertext")
	// the remote service is never reached with undecodable input
	assert.Empty(t, client.resourceNames)
}

func TestEncryptUserDataIncompleteKeyRing(t *testing.T) {
	resolver := testSecrets()
	resolver[secrets.NameKeyRing] = `{"project_id":"p1","location":"global","key_ring":"r1"}`
	recorder := &fakeRecorder{}
	client := &identityClient{}
	e := newTestEncryptor(resolver, client, recorder)

	result, ok := e.EncryptUserData(context.Background(), "data")
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, []string{"Encryption"}, recorder.operations())
	assert.Contains(t, recorder.recorded[0].message, "key_name")
	// resource-name formatting is never attempted with partial data
	assert.Empty(t, client.resourceNames)
}

func TestInitializationRetriesOnNextCall(t *testing.T) {
	resolver := testSecrets()
	delete(resolver, secrets.NameCredentials)
	recorder := &fakeRecorder{}

	factoryCalls := 0
	e := NewEncryptor(resolver,
		WithErrorRecorder(recorder),
		WithClientFactory(func(ctx context.Context, credentials string) (KeyServiceClient, error) {
			factoryCalls++
			return &identityClient{}, nil
		}))

	result, ok := e.EncryptToken(context.Background(), "data")
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, []string{"Initialization"}, recorder.operations())
	assert.Equal(t, 0, factoryCalls)

	// operator fixes the resolver; the next call succeeds
	resolver[secrets.NameCredentials] = "ya29.test-token"
	_, ok = e.EncryptToken(context.Background(), "data")
	assert.True(t, ok)
	assert.Equal(t, 1, factoryCalls)

	// the handle is reused once constructed
	_, ok = e.EncryptToken(context.Background(), "data")
	assert.True(t, ok)
	assert.Equal(t, 1, factoryCalls)
}

func TestClientConstructionFailureTags(t *testing.T) {
	tests := []struct {
		name        string
		call        func(e *Encryptor) bool
		expectedTag string
	}{
		{
			name: "encrypt token tags initialization",
			call: func(e *Encryptor) bool {
				_, ok := e.EncryptToken(context.Background(), "data")
				return ok
			},
			expectedTag: "Initialization",
		},
		{
			name: "encrypt user data tags encryption",
			call: func(e *Encryptor) bool {
				_, ok := e.EncryptUserData(context.Background(), "data")
				return ok
			},
			expectedTag: "Encryption",
		},
		{
			name: "decrypt token tags decryption",
			call: func(e *Encryptor) bool {
				_, ok := e.DecryptToken(context.Background(), "aGVsbG8=")
				return ok
			},
			expectedTag: "Decryption",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &fakeRecorder{}
			e := NewEncryptor(testSecrets(),
				WithErrorRecorder(recorder),
				WithClientFactory(func(ctx context.Context, credentials string) (KeyServiceClient, error) {
					return nil, fmt.Errorf("failed to create KMS client: bad credentials")
				}))

			ok := tt.call(e)
			assert.False(t, ok)
			assert.Equal(t, []string{tt.expectedTag}, recorder.operations())
			assert.Contains(t, recorder.recorded[0].message, "bad credentials")
		})
	}
}

func TestRemoteServiceFailures(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(*MockKeyServiceClient)
		call        func(e *Encryptor) (string, bool)
		expectedTag string
	}{
		{
			name: "remote encrypt rejected",
			mockSetup: func(client *MockKeyServiceClient) {
				client.On("Encrypt", testResourceName, mock.Anything).Return([]byte(""), fmt.Errorf("permission denied"))
			},
			call: func(e *Encryptor) (string, bool) {
				return e.EncryptUserData(context.Background(), "data")
			},
			expectedTag: "Encryption",
		},
		{
			name: "remote decrypt rejected",
			mockSetup: func(client *MockKeyServiceClient) {
				client.On("Decrypt", testResourceName, mock.Anything).Return([]byte(""), fmt.Errorf("key unavailable"))
			},
			call: func(e *Encryptor) (string, bool) {
				return e.DecryptToken(context.Background(), "aGVsbG8=")
			},
			expectedTag: "Decryption",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockKeyServiceClient)
			tt.mockSetup(client)
			recorder := &fakeRecorder{}
			e := newTestEncryptor(testSecrets(), client, recorder)

			result, ok := tt.call(e)
			assert.False(t, ok)
			assert.Empty(t, result)
			assert.Equal(t, []string{tt.expectedTag}, recorder.operations())
			client.AssertExpectations(t)
		})
	}
}

func TestCloseWithoutClient(t *testing.T) {
	e := NewEncryptor(testSecrets())
	assert.NoError(t, e.Close())
}

func TestEncryptPayloadMissingCredentials(t *testing.T) {
	resolver := testSecrets()
	delete(resolver, secrets.NameCredentials)
	recorder := &fakeRecorder{}
	e := newTestEncryptor(resolver, &identityClient{}, recorder)

	result, ok := e.EncryptPayload(context.Background(), []byte("payload"))
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, []string{"Encryption"}, recorder.operations())
}

func TestDecryptPayloadMalformedBase64(t *testing.T) {
	recorder := &fakeRecorder{}
	e := newTestEncryptor(testSecrets(), &identityClient{}, recorder)

	result, ok := e.DecryptPayload(context.Background(), "not-base64!!")
	assert.False(t, ok)
	assert.Nil(t, result)
	assert.Equal(t, []string{"Decryption"}, recorder.operations())
}
