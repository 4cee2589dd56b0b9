/*
Copyright 2025 Google.

This software is provided as-is, without warranty or representation for any use or purpose.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	rawLog "log"
	"os"
	"os/signal"
	"syscall"

	cfg "github.com/bumikpro/google-kms-encryption/config"
	"github.com/bumikpro/google-kms-encryption/crypto"
	"github.com/bumikpro/google-kms-encryption/secrets"

	log "github.com/sirupsen/logrus"
)

// makefile will turn this into a version
var Version = ".2"

var (
	encryptTokenArg = flag.String("encrypt_token", "", "derive an HMAC token from the value and encrypt it with the KMS key")
	encryptDataArg  = flag.String("encrypt_data", "", "encrypt the value with the KMS key. JSON objects are passed through canonical serialization.")
	decryptArg      = flag.String("decrypt", "", "decrypt a base64 ciphertext with the KMS key")
)

func main() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	go func() {
		s := <-sigc
		log.Info("Signal Caught: ", s)
		os.Exit(0)
	}()

	initConfig()

	encryptor := crypto.NewEncryptor(buildResolver(cfg.GlobalConfig))
	defer encryptor.Close()

	ctx := context.Background()
	var result string
	var ok bool
	switch {
	case *encryptTokenArg != "":
		result, ok = encryptor.EncryptToken(ctx, *encryptTokenArg)
	case *encryptDataArg != "":
		result, ok = encryptor.EncryptUserData(ctx, userData(*encryptDataArg))
	case *decryptArg != "":
		result, ok = encryptor.DecryptToken(ctx, *decryptArg)
	default:
		usage()
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
	fmt.Println(result)
}

// userData keeps JSON objects structured so they go through the canonical
// serialization path instead of being encrypted as an opaque string.
func userData(arg string) any {
	structured := make(map[string]any)
	if err := json.Unmarshal([]byte(arg), &structured); err == nil {
		return structured
	}
	return arg
}

func buildResolver(config *cfg.Config) secrets.Resolver {
	if config.SecretsFile != "" {
		return secrets.File{Path: config.SecretsFile}
	}
	return secrets.Env{}
}

func initConfig() {
	config := cfg.LoadConfig()

	if config.Version {
		log.Infof("kms-encryption: %v", Version)
		usage()
		os.Exit(0)
	}

	if config.Debug > 0 {
		rawLog.SetFlags(rawLog.LstdFlags | rawLog.Lshortfile)
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if config.Debug == 2 {
		log.SetReportCaller(true)
	}
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	configJson, _ := json.MarshalIndent(config, "", "\t")
	log.Debugf("kms-encryption version '%v' starting... %v", Version, string(configJson))
}

func usage() {
	flag.Usage()
	fmt.Println("\nEnvironment variables supported:")
	fmt.Println("  DEBUG_LEVEL")
	fmt.Println("  KMS_SECRETS_FILE")
	fmt.Println("  KMS_MONITORING_PROJECT")
	fmt.Println("  KMS_CREDENTIALS, KMS_KEYRING, KMS_APP_SECRET (when no secrets file is set)")
}
