package signature

import (
	"bytes"
	"encoding/hex"
	"mtriage_go/common"
	"mtriage_go/cryptutils"
	"mtriage_go/customerrs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hillu/go-yara/v4"
)

// NewEngineFromRuleDir compiles every .yar file under dir into one
// ruleset. Compilation failure disables the YARA engine and returns the
// fallback instead of aborting startup, per the degradation contract.
func NewEngineFromRuleDir(rulesDir string) (*Engine, error) {
	yrCompiler, err := yara.NewCompiler()
	if err != nil {
		return NewFallbackEngine(), err
	}
	added := 0
	err = filepath.Walk(rulesDir, func(curPath string, curInfo os.FileInfo, err error) error {
		if err != nil {
			common.Logger.Warnln("iterating rule files: ", err)
			return nil
		}
		if curInfo.IsDir() || !strings.HasSuffix(curInfo.Name(), ".yar") {
			return nil
		}
		tmpFd, err := os.OpenFile(curPath, os.O_RDONLY, 0644)
		if err != nil {
			return err
		}
		defer tmpFd.Close()
		if err = yrCompiler.AddFile(tmpFd, "mtriage"); err != nil {
			return err
		}
		added++
		common.Logger.Debugln("yara compiler, file added: ", curPath)
		return nil
	})
	if err != nil {
		common.Logger.Errorln(customerrs.ErrYaraCompilationFailure, err)
		return NewFallbackEngine(), customerrs.ErrYaraCompilationFailure
	}
	if added == 0 {
		common.Logger.Warnln("no .yar rules found under: ", rulesDir)
		return NewFallbackEngine(), customerrs.ErrSignatureEngineUnavailable
	}
	compRules, err := yrCompiler.GetRules()
	if err != nil {
		common.Logger.Errorln(customerrs.ErrYaraCompilationFailure, err)
		return NewFallbackEngine(), customerrs.ErrYaraCompilationFailure
	}
	common.Logger.Infof("yara ruleset compiled from %d file(s)\n", added)
	return newYaraEngine(compRules), nil
}

// NewEngineFromSealedBundle loads a pre-compiled ruleset sealed with
// XChaCha20-Poly1305. hexKey is the hex-encoded 32-byte bundle key.
func NewEngineFromSealedBundle(bundlePath string, hexKey string) (*Engine, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return NewFallbackEngine(), customerrs.ErrInvalidInput
	}
	sealed, err := os.ReadFile(bundlePath)
	if err != nil {
		return NewFallbackEngine(), err
	}
	plain, err := cryptutils.XChacha20Decrypt(key, sealed)
	if err != nil {
		common.Logger.Errorln("rule bundle rejected: ", err)
		return NewFallbackEngine(), err
	}
	rules, err := yara.ReadRules(bytes.NewReader(plain))
	if err != nil {
		common.Logger.Errorln(customerrs.ErrYaraCompilationFailure, err)
		return NewFallbackEngine(), customerrs.ErrYaraCompilationFailure
	}
	return newYaraEngine(rules), nil
}

// CompileAndSealRuleDir compiles a plain-text rule directory and writes
// the sealed bundle, developer tooling for rule pack releases.
func CompileAndSealRuleDir(rulesDir string, destPath string, hexKey string) error {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return customerrs.ErrInvalidInput
	}
	eng, err := NewEngineFromRuleDir(rulesDir)
	if err != nil {
		return err
	}
	tmpPath := destPath + ".plain.tmp"
	if err = eng.rules.Save(tmpPath); err != nil {
		return err
	}
	defer os.Remove(tmpPath)
	plain, err := os.ReadFile(tmpPath)
	if err != nil {
		return err
	}
	sealed, err := cryptutils.XChacha20Encrypt(key, plain)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, sealed, 0644)
}
