/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package cfg

import (
	"flag"
	"os"
	"strconv"
)

type Config struct {
	Version bool // show version

	Debug int // debug mode: 0 - ERROR, 1 - DEBUG, 2 - TRACE

	// Path to a flat JSON file holding the kms_* secrets. When empty the
	// secrets are resolved from environment variables instead.
	SecretsFile string

	// GCP project that receives the custom latency time series. Empty
	// disables the Cloud Monitoring writer.
	MonitoringProject string

	KMSProxyVersion string
}

var GlobalConfig *Config // Global variable

func LoadConfig() *Config {
	config := new(Config)

	defaultDebug := envConfigIntWithDefault("DEBUG_LEVEL", 0)
	defaultSecretsFile := envConfigStringWithDefault("KMS_SECRETS_FILE", "")
	defaultMonitoringProject := envConfigStringWithDefault("KMS_MONITORING_PROJECT", "")

	flag.BoolVar(&config.Version, "version", false, "show kms-encryption version")
	flag.IntVar(&config.Debug, "debug", defaultDebug, "debug level: 0 - ERROR, 1 - DEBUG, 2 - TRACE")
	flag.StringVar(&config.SecretsFile, "secrets_file", defaultSecretsFile, "path to a JSON file with kms_credentials, kms_keyring and kms_app_secret. Empty reads KMS_CREDENTIALS, KMS_KEYRING and KMS_APP_SECRET from the environment.")
	flag.StringVar(&config.MonitoringProject, "monitoring_project", defaultMonitoringProject, "GCP project id to write encrypt/decrypt latency metrics to. Empty disables the metric writer.")
	flag.Parse()

	config.KMSProxyVersion = "0.2"
	GlobalConfig = config
	return config
}

func envConfigStringWithDefault(key string, defValue string) string {
	envVar := os.Getenv(key)
	if len(envVar) == 0 {
		return defValue
	}
	return envVar
}

func envConfigBoolWithDefault(key string, defValue bool) bool {
	envVar, boolError := strconv.ParseBool(os.Getenv(key))
	if boolError == nil {
		return envVar
	}
	return defValue
}

func envConfigIntWithDefault(key string, defValue int) int {
	envVar, intError := strconv.Atoi(os.Getenv(key))
	if intError == nil {
		return envVar
	}
	return defValue
}
