package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"mtriage_go/common"
	"mtriage_go/config"
	"mtriage_go/logging"
	"mtriage_go/signature"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	flRulesDir = flag.String("rulesDir", "rules", "Directory of plain-text .yar rule files to compile.")
	flOutput   = flag.String("output", "mtriage_rules.bin", "Destination path for the sealed rule bundle.")
	flKeyHex   = flag.String("key", "", "Hex-encoded 32-byte bundle key. Empty generates a fresh key and prints it.")
)

func init() {
	flag.Parse()
}

func main() {
	logCfg := config.Defaults().Triage.Logging
	logCfg.File = "mtriage_go_rulepacker.log"
	logger, logfd := logging.NewLogger(logCfg)
	common.Logger = logger
	defer logfd.Sync()
	defer logfd.Close()

	keyHex := *flKeyHex
	if keyHex == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			logger.Fatalln(err)
		}
		keyHex = hex.EncodeToString(key)
		logger.Infoln("Generated bundle key: ", keyHex)
	}

	if err := signature.CompileAndSealRuleDir(*flRulesDir, *flOutput, keyHex); err != nil {
		logger.Fatalln("rule pack build failed: ", err)
	}
	defer signature.RecycleYaraResources()
	logger.Infoln("Sealed rule bundle written: ", *flOutput)
}
