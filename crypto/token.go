/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// nonce range is fixed at six decimal digits
const (
	nonceMin = 100000
	nonceMax = 999999
)

// randomNonce draws a uniform 6-digit integer from crypto/rand.
func randomNonce() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(nonceMax-nonceMin+1))
	if err != nil {
		return 0, fmt.Errorf("error drawing token nonce: %v", err)
	}
	return nonceMin + n.Int64(), nil
}

// deriveToken builds the tamper-evident token that EncryptToken sends to KMS:
// HMAC-SHA256 over "data|timestamp|nonce" keyed with the app secret, hex
// encoded. The timestamp and nonce make repeated tokens for the same data
// distinct, so identical inputs never produce correlatable ciphertexts.
func deriveToken(data string, appSecret string, at time.Time, nonce int64) string {
	message := fmt.Sprintf("%s|%d|%d", data, at.Unix(), nonce)
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
