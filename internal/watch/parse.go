// Package watch turns a drop folder into upload batches: photos copied into
// the outbox are picked up once they stop growing, named into rooms and
// photo types by filename convention, and handed off in groups.
package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jobproof/jobproof-go/internal/batch"
)

// ErrNotAPhoto is returned for files whose extension is not a supported
// image format.
var ErrNotAPhoto = errors.New("watch: not a photo file")

// photoExts are the extensions picked up from the outbox, lower-cased.
var photoExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".webp": true,
}

// photoTypes are the type tokens recognized in filenames.
var photoTypes = map[string]bool{
	"before":   true,
	"after":    true,
	"mix":      true,
	"combined": true,
}

// ParseItem maps an outbox file path onto an upload item using the
// filename convention
//
//	<room>_<type>[_<format>]_<anything>.<ext>
//
// e.g. "kitchen_before_042.jpg" or "bath_after_instagram_1.png". Tokens
// are separated by underscores; the type token anchors the parse, so rooms
// must not contain a bare type word. Files without a recognizable type
// token become combined shots with no room.
func ParseItem(path string) (batch.Item, error) {
	base := filepath.Base(path)

	ext := strings.ToLower(filepath.Ext(base))
	if !photoExts[ext] {
		return batch.Item{}, fmt.Errorf("%w: %s", ErrNotAPhoto, base)
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	tokens := strings.Split(stem, "_")

	typeIdx := -1
	for i, tok := range tokens {
		if photoTypes[strings.ToLower(tok)] {
			typeIdx = i
			break
		}
	}

	item := batch.Item{
		SourceRef: path,
		Filename:  base,
		Type:      batch.TypeCombined,
	}

	if typeIdx < 0 {
		return item, nil
	}

	item.Room = strings.Join(tokens[:typeIdx], " ")
	item.Type = batch.NormalizeType(strings.ToLower(tokens[typeIdx]))

	// An optional format token follows the type, distinguished from plain
	// sequence suffixes by not being numeric.
	if typeIdx+1 < len(tokens) {
		if cand := tokens[typeIdx+1]; !isNumeric(cand) {
			item.Format = strings.ToLower(cand)
		}
	}

	return item, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
