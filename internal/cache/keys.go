package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	NamespaceTranscription = "transcription"
	NamespaceAnalysis      = "analysis"
)

func TranscriptionKey(fileHash, optionsHash string) string {
	return fmt.Sprintf("transcription:%s:%s", fileHash, optionsHash)
}

func AnalysisKey(textHash, rulesHash string) string {
	return fmt.Sprintf("analysis:%s:%s", textHash, rulesHash)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

// FileFingerprint derives a fast identity surrogate for an audio file from
// path + size + mtime rather than content. Overwriting a file in place
// without changing its size or timestamp yields a stale hit; accepted for
// speed. A missing file hashes its path alone so lookups still key cleanly.
func FileFingerprint(path string) string {
	stat, err := os.Stat(path)
	if err != nil {
		return hashString(path)
	}
	return hashString(fmt.Sprintf("%s_%d_%d", path, stat.Size(), stat.ModTime().UnixNano()))
}

// OptionsHash produces a short stable hash of any JSON-serializable options value.
func OptionsHash(options any) string {
	data, err := json.Marshal(options)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", options))
	}
	return hashString(string(data))[:8]
}

// RulesHash produces a short order-independent hash of a rule keyword set.
func RulesHash(keywords []string) string {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Strings(sorted)
	return hashString(strings.Join(sorted, ","))[:8]
}

// TextHash hashes transcript text for analysis cache keys.
func TextHash(text string) string {
	return hashString(text)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", sum)
}
