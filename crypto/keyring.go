/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package crypto

import (
	"encoding/json"
	"fmt"
)

// KeyRingDescriptor identifies a single crypto key inside Cloud KMS. It is
// stored as a JSON blob under the kms_keyring logical secret name.
type KeyRingDescriptor struct {
	ProjectID string `json:"project_id"`
	Location  string `json:"location"`
	KeyRing   string `json:"key_ring"`
	KeyName   string `json:"key_name"`
}

// ParseKeyRingDescriptor parses the kms_keyring JSON blob. All four fields
// are required; a partial descriptor never reaches resource-name formatting.
func ParseKeyRingDescriptor(raw string) (*KeyRingDescriptor, error) {
	var desc KeyRingDescriptor
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return nil, fmt.Errorf("error parsing keyring descriptor: %v", err)
	}
	if err := desc.validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *KeyRingDescriptor) validate() error {
	missing := ""
	switch {
	case d.ProjectID == "":
		missing = "project_id"
	case d.Location == "":
		missing = "location"
	case d.KeyRing == "":
		missing = "key_ring"
	case d.KeyName == "":
		missing = "key_name"
	}
	if missing != "" {
		return fmt.Errorf("keyring descriptor missing required field %v", missing)
	}
	return nil
}

// ResourceName formats the KMS key resource name in the format:
// projects/<project>/locations/<location>/keyRings/<ring>/cryptoKeys/<key>
func (d *KeyRingDescriptor) ResourceName() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s",
		d.ProjectID, d.Location, d.KeyRing, d.KeyName)
}
