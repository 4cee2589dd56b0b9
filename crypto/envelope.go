/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/core/registry"
	"github.com/google/tink/go/integration/gcpkms"
	"github.com/google/tink/go/tink"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfg "github.com/bumikpro/google-kms-encryption/config"
	"github.com/bumikpro/google-kms-encryption/secrets"
)

const scopeName = "github.com/bumikpro/google-kms-encryption"

var (
	otelEnabled = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	Meter       = otel.Meter(scopeName)
	EncryptTime metric.Float64Gauge
	DecryptTime metric.Float64Gauge
)

func init() {
	EncryptTime, _ = Meter.Float64Gauge("kms.envelope.encrypt.seconds")
	DecryptTime, _ = Meter.Float64Gauge("kms.envelope.decrypt.seconds")
}

// EncryptPayload envelope-encrypts an arbitrary payload: Tink generates a
// fresh AES256-GCM data key per call and wraps it with the KMS key, so large
// payloads never cross the wire to the key service. Returns base64
// ciphertext, or ok=false after logging the failure.
func (e *Encryptor) EncryptPayload(ctx context.Context, data []byte) (ciphertext string, ok bool) {
	credentials, err := e.resolver.Get(ctx, secrets.NameCredentials)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	resourceName, err := e.resolveKeyResourceName(ctx)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	encrypted, err := EncryptBytes(ctx, resourceName, credentials, data)
	if err != nil {
		return e.fail(tagEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), true
}

// DecryptPayload reverses EncryptPayload.
func (e *Encryptor) DecryptPayload(ctx context.Context, ciphertext string) ([]byte, bool) {
	credentials, err := e.resolver.Get(ctx, secrets.NameCredentials)
	if err != nil {
		e.fail(tagDecryption, err)
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		e.fail(tagDecryption, fmt.Errorf("error decoding ciphertext: %v", err))
		return nil, false
	}
	resourceName, err := e.resolveKeyResourceName(ctx)
	if err != nil {
		e.fail(tagDecryption, err)
		return nil, false
	}
	decrypted, err := DecryptBytes(ctx, resourceName, credentials, raw)
	if err != nil {
		e.fail(tagDecryption, err)
		return nil, false
	}
	return decrypted, true
}

// EncryptBytes envelope-encrypts bytes with the KMS key referenced by
// resourceName in the format:
// projects/<project>/locations/<location>/keyRings/<ring>/cryptoKeys/<key>
func EncryptBytes(ctx context.Context, resourceName string, credentials string, bytesToEncrypt []byte) ([]byte, error) {
	// Capture the encryption latency
	latencyStart := time.Now()

	envAEAD, err := newEnvelopeAEAD(ctx, resourceName, credentials)
	if err != nil {
		return nil, err
	}

	aad := []byte("")
	encryptedBytes, err := envAEAD.Encrypt(bytesToEncrypt, aad)
	if err != nil {
		return nil, fmt.Errorf("error encrypting data: %v", err)
	}

	recordLatency(ctx, EncryptTime, "encrypt", time.Since(latencyStart).Seconds())
	return encryptedBytes, nil
}

// DecryptBytes envelope-decrypts bytes produced by EncryptBytes.
func DecryptBytes(ctx context.Context, resourceName string, credentials string, bytesToDecrypt []byte) ([]byte, error) {
	// Capture the decryption latency
	latencyStart := time.Now()

	envAEAD, err := newEnvelopeAEAD(ctx, resourceName, credentials)
	if err != nil {
		return nil, err
	}

	aad := []byte("")
	decryptedBytes, err := envAEAD.Decrypt(bytesToDecrypt, aad)
	if err != nil {
		return nil, fmt.Errorf("error decrypting data: %v", err)
	}

	recordLatency(ctx, DecryptTime, "decrypt", time.Since(latencyStart).Seconds())
	return decryptedBytes, nil
}

// newEnvelopeAEAD builds the KMS-backed envelope AEAD for the key URI
// gcp-kms://<resourceName>.
func newEnvelopeAEAD(ctx context.Context, resourceName string, credentials string) (tink.AEAD, error) {
	keyURI := fmt.Sprintf("gcp-kms://%s", resourceName)

	kmsClient, err := gcpkms.NewClientWithOptions(ctx, keyURI, credentialOption(credentials))
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS client: %v", err)
	}

	kmsAEAD, err := kmsClient.GetAEAD(keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS AEAD client: %v", err)
	}

	registry.RegisterKMSClient(kmsClient)

	envAEAD := aead.NewKMSEnvelopeAEAD2(aead.AES256GCMKeyTemplate(), kmsAEAD)
	if envAEAD == nil {
		return nil, fmt.Errorf("failed to create KMS AEAD envelope")
	}
	return envAEAD, nil
}

func recordLatency(ctx context.Context, gauge metric.Float64Gauge, mode string, elapsed float64) {
	if otelEnabled != "" && gauge != nil {
		gauge.Record(ctx, elapsed, metric.WithAttributes(attribute.String("kms-operation", mode)))
	}
	if cfg.GlobalConfig != nil && cfg.GlobalConfig.MonitoringProject != "" {
		metricType := fmt.Sprintf("custom.googleapis.com/kmsproxy/%s_latency", mode)
		err := writeTimeSeriesValue(ctx, cfg.GlobalConfig.MonitoringProject, metricType, elapsed, mode)
		if err != nil {
			log.Debugf("error writing latency time series: %v", err)
		}
	}
}
